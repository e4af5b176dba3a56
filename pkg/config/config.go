package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"schemctl/pkg/clipboard"
	"schemctl/pkg/errors"
	"schemctl/pkg/format/builtin"
	"schemctl/pkg/format/bundle"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSaveDirName  = "schematics"
	DefaultLogLevel     = "info"
	DefaultCacheTTLDays = 30
)

// Profile is a named set of overrides, e.g. one per server.
type Profile struct {
	Name          string               `yaml:"name"`
	SaveDir       string               `yaml:"save_dir,omitempty"`
	DefaultFormat string               `yaml:"default_format,omitempty"`
	World         *clipboard.WorldData `yaml:"world,omitempty"`
	Default       bool                 `yaml:"default,omitempty"`
}

// Config holds the complete configuration including profiles
type Config struct {
	SaveDir       string              `yaml:"save_dir"`
	DefaultFormat string              `yaml:"default_format"`
	LogLevel      string              `yaml:"log_level"`
	AssumeYes     bool                `yaml:"assume_yes,omitempty"`
	World         clipboard.WorldData `yaml:"world"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Bundle        BundleConfig        `yaml:"bundle"`
	Metrics       MetricsConfig       `yaml:"metrics,omitempty"`
	Profiles      []Profile           `yaml:"profiles,omitempty"`
	ActiveProfile string              `yaml:"active_profile,omitempty"`
}

type CatalogConfig struct {
	Cache        bool   `yaml:"cache"`
	CachePath    string `yaml:"cache_path,omitempty"`
	CacheTTLDays int    `yaml:"cache_ttl_days,omitempty"`
}

type BundleConfig struct {
	Compression string `yaml:"compression"`
}

type MetricsConfig struct {
	// Addr, when set, makes the shell serve /metrics on it.
	Addr string `yaml:"addr,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultFormat: builtin.DefaultFormat,
		LogLevel:      DefaultLogLevel,
		World:         clipboard.DefaultWorld,
		Catalog:       CatalogConfig{Cache: true, CacheTTLDays: DefaultCacheTTLDays},
		Bundle:        BundleConfig{Compression: bundle.CompressionLZ4.String()},
	}
}

// Load loads the configuration, optionally with a specific profile
func Load(profileName ...string) (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, errors.NewWithError(errors.ExitCodeConfig, "failed to get config path", err)
	}
	return loadFromPath(configPath, profileName...)
}

// LoadFrom loads the configuration at path instead of the default location.
func LoadFrom(path string, profileName ...string) (*Config, error) {
	return loadFromPath(path, profileName...)
}

// ReadFile returns the config stored at path without environment overrides,
// profile merging or path expansion. Commands that edit the file use it so
// the overrides of the current shell are not written back.
func ReadFile(path string) (*Config, error) {
	cfg := Default()
	if err := loadConfigFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetConfigPath returns the path to the config file. SCHEMCTL_CONFIG wins
// over the user config directory.
func GetConfigPath() (string, error) {
	if p := os.Getenv("SCHEMCTL_CONFIG"); p != "" {
		return p, nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "schemctl", "config.yaml"), nil
}

// GetDataDir returns the directory holding schematics and the detection
// cache when the config names none.
func GetDataDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "schemctl"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "schemctl"), nil
}

// Save writes cfg to the default config path.
func Save(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(configPath, cfg)
}

// SaveTo writes cfg to path, creating its directory.
func SaveTo(configPath string, cfg *Config) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return errors.NewWithError(errors.ExitCodeFileOperation, "failed to create config directory", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.NewWithError(errors.ExitCodeConfig, "failed to marshal config", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.NewWithError(errors.ExitCodeFileOperation, "failed to write config file", err)
	}

	return nil
}

// GetProfile returns a profile by name
func (c *Config) GetProfile(name string) (*Profile, error) {
	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			return &c.Profiles[i], nil
		}
	}
	return nil, fmt.Errorf("profile '%s' not found", name)
}

// SetProfile sets the active profile
func (c *Config) SetProfile(name string) error {
	if name == "" {
		c.ActiveProfile = ""
		return nil
	}

	if _, err := c.GetProfile(name); err != nil {
		return err
	}

	c.ActiveProfile = name
	return nil
}

// AddProfile adds a new profile
func (c *Config) AddProfile(profile Profile) error {
	if _, err := c.GetProfile(profile.Name); err == nil {
		return fmt.Errorf("profile '%s' already exists", profile.Name)
	}

	c.Profiles = append(c.Profiles, profile)
	return nil
}

// RemoveProfile removes a profile
func (c *Config) RemoveProfile(name string) error {
	if c.ActiveProfile == name {
		return fmt.Errorf("cannot remove active profile '%s'", name)
	}

	for i, p := range c.Profiles {
		if p.Name == name {
			c.Profiles = append(c.Profiles[:i], c.Profiles[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("profile '%s' not found", name)
}

// ListProfiles returns a list of profile names
func (c *Config) ListProfiles() []string {
	names := make([]string, 0, len(c.Profiles))
	for _, p := range c.Profiles {
		names = append(names, p.Name)
	}
	return names
}

func (c *Config) IsProfileActive(name string) bool {
	return c.ActiveProfile == name
}

// CacheFile returns the detection cache database path.
func (c *Config) CacheFile() (string, error) {
	if c.Catalog.CachePath != "" {
		return c.Catalog.CachePath, nil
	}
	dir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cache.db"), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func loadFromPath(configPath string, profileName ...string) (*Config, error) {
	cfg := Default()

	if err := loadConfigFile(configPath, cfg); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(cfg)

	targetProfile := ""
	if len(profileName) > 0 && profileName[0] != "" {
		targetProfile = profileName[0]
	} else if cfg.ActiveProfile != "" {
		targetProfile = cfg.ActiveProfile
	}

	if targetProfile != "" {
		profile, err := cfg.GetProfile(targetProfile)
		if err != nil {
			return nil, errors.ConfigError(err.Error())
		}
		applyProfileConfig(cfg, profile)
	}

	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyProfileConfig(cfg *Config, profile *Profile) {
	if profile.SaveDir != "" {
		cfg.SaveDir = profile.SaveDir
	}
	if profile.DefaultFormat != "" {
		cfg.DefaultFormat = profile.DefaultFormat
	}
	if profile.World != nil {
		cfg.World = *profile.World
	}
}

// loadConfigFile reads and parses the config file from the given path
func loadConfigFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		// no file, defaults and environment only
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.NewWithError(errors.ExitCodeFileOperation, "failed to read config file", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.NewWithError(errors.ExitCodeConfig, "failed to parse config file", err)
	}

	return nil
}

// applyEnvironmentOverrides lets SCHEMCTL_* variables win over the file.
func applyEnvironmentOverrides(cfg *Config) {
	cfg.SaveDir = getEnv("SCHEMCTL_SAVE_DIR", cfg.SaveDir)
	cfg.DefaultFormat = getEnv("SCHEMCTL_DEFAULT_FORMAT", cfg.DefaultFormat)
	cfg.LogLevel = getEnv("SCHEMCTL_LOG_LEVEL", cfg.LogLevel)
	cfg.AssumeYes = getEnvBool("SCHEMCTL_ASSUME_YES", cfg.AssumeYes)
	cfg.Bundle.Compression = getEnv("SCHEMCTL_BUNDLE_COMPRESSION", cfg.Bundle.Compression)
	cfg.Catalog.Cache = getEnvBool("SCHEMCTL_CACHE", cfg.Catalog.Cache)
	cfg.Catalog.CacheTTLDays = getEnvInt("SCHEMCTL_CACHE_TTL_DAYS", cfg.Catalog.CacheTTLDays)
	cfg.Metrics.Addr = getEnv("SCHEMCTL_METRICS_ADDR", cfg.Metrics.Addr)

	if profileEnv := os.Getenv("SCHEMCTL_PROFILE"); profileEnv != "" {
		cfg.ActiveProfile = profileEnv
	}
}

func applyDefaults(cfg *Config) error {
	if cfg.SaveDir == "" {
		dir, err := GetDataDir()
		if err != nil {
			return errors.NewWithError(errors.ExitCodeConfig, "failed to determine data directory", err)
		}
		cfg.SaveDir = filepath.Join(dir, DefaultSaveDirName)
	}
	if strings.HasPrefix(cfg.SaveDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.NewWithError(errors.ExitCodeConfig, "failed to expand save_dir", err)
		}
		cfg.SaveDir = filepath.Join(home, cfg.SaveDir[2:])
	}
	// cache rows are keyed by absolute path
	if abs, err := filepath.Abs(cfg.SaveDir); err == nil {
		cfg.SaveDir = abs
	}
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = builtin.DefaultFormat
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.World == (clipboard.WorldData{}) {
		cfg.World = clipboard.DefaultWorld
	}
	if cfg.Catalog.CacheTTLDays == 0 {
		cfg.Catalog.CacheTTLDays = DefaultCacheTTLDays
	}
	return nil
}

var logLevels = []string{"debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled", "off"}

// validateConfig rejects values the commands could not act on.
func validateConfig(cfg *Config) error {
	if _, err := builtin.Registry().Lookup(cfg.DefaultFormat); err != nil {
		return errors.ConfigError(fmt.Sprintf("default_format %q is not a known format. Run 'schemctl formats' or set SCHEMCTL_DEFAULT_FORMAT", cfg.DefaultFormat))
	}
	if _, err := bundle.ParseCompression(cfg.Bundle.Compression); err != nil {
		return errors.ConfigError("bundle.compression: " + err.Error())
	}
	level := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	valid := false
	for _, l := range logLevels {
		if l == level {
			valid = true
			break
		}
	}
	if !valid {
		return errors.ConfigError(fmt.Sprintf("log_level %q is not one of %s", cfg.LogLevel, strings.Join(logLevels, ", ")))
	}
	if cfg.Catalog.CacheTTLDays < 0 {
		return errors.ConfigError("catalog.cache_ttl_days must not be negative")
	}
	if cfg.World.DataVersion < 0 {
		return errors.ConfigError("world.data_version must not be negative")
	}
	return nil
}
