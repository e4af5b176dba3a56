package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"schemctl/pkg/completions"
	"schemctl/pkg/config"
	"schemctl/pkg/errors"
	"schemctl/pkg/logger"

	"github.com/spf13/cobra"
)

const (
	unknownValue = "unknown"
)

var (
	Version   string
	BuildTime string
	GitCommit string
)

var defaultTimeout = 5 * time.Minute
var globalTimeout time.Duration
var outputFormat string
var dryRunFlag bool
var assumeYesFlag bool
var copyToClipboardFlag bool
var logLevel string
var configPath string
var profileName string
var saveDirFlag string

// loadedConfig is set by the root pre-run hook.
var loadedConfig *config.Config

var rootCmd = &cobra.Command{
	Use:   "schemctl",
	Short: "Schematic clipboard tool",
	Long: `Load, save, convert and list block schematics in a confined folder.
Supports the Sponge (.schem), MCEdit (.schematic), bundle (.weclip) and JSON
formats. Configuration lives in the XDG config directory; format detections
are cached in SQLite.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if globalTimeout <= 0 {
			globalTimeout = defaultTimeout
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("save-dir") {
			if cfg.SaveDir, err = filepath.Abs(saveDirFlag); err != nil {
				return errors.ConfigError(fmt.Sprintf("invalid --save-dir %q: %v", saveDirFlag, err))
			}
		}
		if cmd.Flags().Changed("yes") {
			cfg.AssumeYes = assumeYesFlag
		} else {
			assumeYesFlag = cfg.AssumeYes
		}
		loadedConfig = cfg

		// explicit flag wins over config file and environment
		level := cfg.LogLevel
		if cmd.Flags().Changed("log-level") {
			level = logLevel
		}
		logger.SetLevel(level)
		return nil
	},
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath, profileName)
	}
	return config.Load(profileName)
}

// Config returns the configuration loaded for the running command.
func Config() *config.Config {
	if loadedConfig == nil {
		return config.Default()
	}
	return loadedConfig
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		ver := Version
		if ver == "" {
			ver = "dev"
		}
		bt := BuildTime
		if bt == "" {
			bt = unknownValue
		}
		gc := GitCommit
		if gc == "" {
			gc = unknownValue
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "schemctl version %s\n", ver)
		fmt.Fprintf(out, "Built: %s\n", bt)
		fmt.Fprintf(out, "Git commit: %s\n", gc)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		exitCode := errors.HandleReturn(err)
		os.Exit(int(exitCode))
	}
}

func GetContext() (context.Context, context.CancelFunc) {
	timeout := globalTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}

func init() {
	RegisterCommands(rootCmd)

	flags := rootCmd.PersistentFlags()
	flags.DurationVar(&globalTimeout, "timeout", defaultTimeout, "Timeout for a single command (e.g., 30s, 1m)")
	flags.StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	flags.BoolVar(&dryRunFlag, "dry-run", false, "Show what would be done without making changes")
	flags.BoolVarP(&assumeYesFlag, "yes", "y", false, "Skip confirmation prompts")
	flags.BoolVar(&copyToClipboardFlag, "copy", false, "Copy output to the system clipboard")
	flags.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error, fatal, panic)")
	flags.StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/schemctl/config.yaml)")
	flags.StringVar(&profileName, "profile", "", "Configuration profile to use")
	flags.StringVar(&saveDirFlag, "save-dir", "", "Schematic folder (overrides save_dir)")

	completions.RegisterCompletions(rootCmd)
}
