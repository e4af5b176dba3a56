package cmd

import "github.com/spf13/cobra"

func RegisterCommands(root *cobra.Command) {
	root.AddCommand(versionCmd)

	root.AddCommand(formatsCmd)
	root.AddCommand(listCmd)
	root.AddCommand(infoCmd)
	root.AddCommand(deleteCmd)
	root.AddCommand(convertCmd)
	root.AddCommand(shellCmd)
	root.AddCommand(configCmd)
	root.AddCommand(cacheCmd)

	configCmd.AddCommand(
		configShowCmd,
		configInitCmd,
		configProfilesCmd,
	)

	configProfilesCmd.AddCommand(
		configProfilesListCmd,
		configProfilesAddCmd,
		configProfilesRemoveCmd,
		configProfilesUseCmd,
	)

	cacheCmd.AddCommand(
		cachePruneCmd,
		cacheClearCmd,
	)
}
