package cmd

import (
	"fmt"
	"os"

	"schemctl/pkg/config"
	"schemctl/pkg/errors"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	configProfileName   string
	configProfileDir    string
	configProfileFormat string
	configInitForce     bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage schemctl configuration and profiles",
	Long:  `Manage schemctl configuration, including profiles for switching between schematic folders.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after environment overrides and the active profile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := Config()
		out := NewOutputWriter(outputFormat)
		out.SetWriter(cmd.OutOrStdout())
		if out.IsStructured() {
			return out.Write(cfg)
		}

		w := cmd.OutOrStdout()
		path, _ := configFilePath()
		fmt.Fprintln(w, "Current Configuration:")
		fmt.Fprintln(w, "======================")
		fmt.Fprintf(w, "Config File: %s\n", path)
		fmt.Fprintf(w, "Active Profile: %s\n", func() string {
			if cfg.ActiveProfile == "" {
				return "(none)"
			}
			return cfg.ActiveProfile
		}())
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Save Dir: %s\n", cfg.SaveDir)
		fmt.Fprintf(w, "Default Format: %s\n", cfg.DefaultFormat)
		fmt.Fprintf(w, "Log Level: %s\n", cfg.LogLevel)
		fmt.Fprintf(w, "World: data version %d (%s)\n", cfg.World.DataVersion, cfg.World.Platform)
		fmt.Fprintf(w, "Bundle Compression: %s\n", cfg.Bundle.Compression)
		fmt.Fprintf(w, "Detection Cache: %s\n", func() string {
			if !cfg.Catalog.Cache {
				return "disabled"
			}
			path, err := cfg.CacheFile()
			if err != nil {
				return "enabled"
			}
			return fmt.Sprintf("%s (%d days)", path, cfg.Catalog.CacheTTLDays)
		}())
		if cfg.Metrics.Addr != "" {
			fmt.Fprintf(w, "Metrics Address: %s\n", cfg.Metrics.Addr)
		}

		if len(cfg.Profiles) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Available Profiles:")
			for _, p := range cfg.Profiles {
				active := ""
				if cfg.IsProfileActive(p.Name) {
					active = " (active)"
				}
				fmt.Fprintf(w, "  - %s%s\n", p.Name, active)
			}
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFilePath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return errors.NewWithSuggestion(errors.ExitCodeConfig,
				fmt.Sprintf("config file already exists: %s", path),
				"Use --force to overwrite it")
		}

		if IsDryRun() {
			PrintDryRunAction(cmd.OutOrStdout(), "write the default configuration", map[string]string{"Path": path})
			return nil
		}
		if err := config.SaveTo(path, config.Default()); err != nil {
			return err
		}
		_, _ = color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configProfilesCmd = &cobra.Command{
	Use:     "profiles",
	Aliases: []string{"profile"},
	Short:   "Manage configuration profiles",
	Long:    `List, add, remove, and switch between configuration profiles.`,
}

var configProfilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfigFile()
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		profiles := cfg.ListProfiles()
		if len(profiles) == 0 {
			fmt.Fprintln(w, "No profiles configured.")
			fmt.Fprintln(w, "Use 'schemctl config profiles add --name <name>' to create one.")
			return nil
		}

		fmt.Fprintln(w, "Profiles:")
		for _, name := range profiles {
			profile, _ := cfg.GetProfile(name)
			active := ""
			if cfg.IsProfileActive(name) {
				active = " *active*"
			}
			fmt.Fprintf(w, "  %s%s\n", name, active)
			if profile.SaveDir != "" {
				fmt.Fprintf(w, "    Save Dir: %s\n", profile.SaveDir)
			}
			if profile.DefaultFormat != "" {
				fmt.Fprintf(w, "    Default Format: %s\n", profile.DefaultFormat)
			}
		}
		return nil
	},
}

var configProfilesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new profile",
	Example: `  # A profile for a test server's schematic folder
  schemctl config profiles add --name test --dir /srv/test/plugins/WorldEdit/schematics

  # A profile that saves MCEdit files by default
  schemctl config profiles add --name legacy --default-format mcedit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configProfileName == "" {
			return errors.ConfigError("profile name is required (--name)")
		}

		cfg, path, err := readConfigFile()
		if err != nil {
			return err
		}

		profile := config.Profile{
			Name:          configProfileName,
			SaveDir:       configProfileDir,
			DefaultFormat: configProfileFormat,
		}
		if err := cfg.AddProfile(profile); err != nil {
			return errors.ConfigError(err.Error())
		}
		if err := config.SaveTo(path, cfg); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' added successfully.\n", configProfileName)
		fmt.Fprintf(cmd.OutOrStdout(), "Use 'schemctl config profiles use --name %s' to activate it.\n", configProfileName)
		return nil
	},
}

var configProfilesRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		if configProfileName == "" {
			return errors.ConfigError("profile name is required (--name)")
		}

		cfg, path, err := readConfigFile()
		if err != nil {
			return err
		}
		if err := cfg.RemoveProfile(configProfileName); err != nil {
			return errors.ConfigError(err.Error())
		}
		if err := config.SaveTo(path, cfg); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Profile '%s' removed successfully.\n", configProfileName)
		return nil
	},
}

var configProfilesUseCmd = &cobra.Command{
	Use:   "use",
	Short: "Switch to a profile",
	Long:  `Set the active profile for subsequent commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configProfileName == "" {
			return errors.ConfigError("profile name is required (--name)")
		}

		cfg, path, err := readConfigFile()
		if err != nil {
			return err
		}
		if err := cfg.SetProfile(configProfileName); err != nil {
			return errors.ConfigError(err.Error())
		}
		if err := config.SaveTo(path, cfg); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Switched to profile '%s'.\n", configProfileName)
		return nil
	},
}

// configFilePath honours --config before the default location.
func configFilePath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	path, err := config.GetConfigPath()
	if err != nil {
		return "", errors.NewWithError(errors.ExitCodeConfig, "failed to get config path", err)
	}
	return path, nil
}

func readConfigFile() (*config.Config, string, error) {
	path, err := configFilePath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")

	configProfilesAddCmd.Flags().StringVar(&configProfileName, "name", "", "Profile name (required)")
	configProfilesAddCmd.Flags().StringVar(&configProfileDir, "dir", "", "Schematic folder for this profile")
	configProfilesAddCmd.Flags().StringVar(&configProfileFormat, "default-format", "", "Format used when a name has no explicit format")
	if err := configProfilesAddCmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}

	configProfilesRemoveCmd.Flags().StringVar(&configProfileName, "name", "", "Profile name (required)")
	if err := configProfilesRemoveCmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}

	configProfilesUseCmd.Flags().StringVar(&configProfileName, "name", "", "Profile name (required)")
	if err := configProfilesUseCmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
}
