package completions

import (
	"fmt"
	"strings"
	"sync"

	"schemctl/pkg/catalog"
	"schemctl/pkg/config"
	"schemctl/pkg/format"
	"schemctl/pkg/format/builtin"

	"github.com/spf13/cobra"
)

type Completer struct {
	registry *format.Registry
	// saveDir returns the folder stored names are listed from.
	saveDir func() (string, error)

	mu    sync.RWMutex
	names []string
}

func NewCompleter(registry *format.Registry, saveDir func() (string, error)) *Completer {
	if saveDir == nil {
		saveDir = func() (string, error) {
			cfg, err := config.Load()
			if err != nil {
				return "", err
			}
			return cfg.SaveDir, nil
		}
	}
	return &Completer{registry: registry, saveDir: saveDir}
}

// CompleteFormats offers every alias with its format name as description.
func (c *Completer) CompleteFormats(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var items []string
	for _, d := range c.registry.All() {
		for _, alias := range d.Aliases {
			items = append(items, fmt.Sprintf("%s\t%s (.%s)", alias, d.Name, d.Extension()))
		}
	}
	return c.filterPrefix(items, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// CompleteStoredNames lists the files under the save folder.
func (c *Completer) CompleteStoredNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	dir, err := c.saveDir()
	if err != nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	entries, err := catalog.New(c.registry, nil).List(dir, catalog.SortName)
	if err != nil {
		return c.CompleteCachedNames(cmd, args, toComplete)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, fmt.Sprintf("%s\t%s", e.Path, e.FormatName()))
	}

	c.mu.Lock()
	c.names = names
	c.mu.Unlock()

	return c.filterPrefix(names, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// CompleteCachedNames answers from the last CompleteStoredNames call.
func (c *Completer) CompleteCachedNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.names) == 0 {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return c.filterPrefix(c.names, toComplete), cobra.ShellCompDirectiveNoFileComp
}

func (c *Completer) CompleteSortKeys(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	keys := []string{
		"name\tCase-insensitive path order",
		"oldest\tLeast recently modified first",
		"newest\tMost recently modified first",
	}
	return c.filterPrefix(keys, toComplete), cobra.ShellCompDirectiveNoFileComp
}

func (c *Completer) CompleteAxes(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	axes := []string{"x\tEast-west", "y\tVertical (yaw)", "z\tNorth-south"}
	return c.filterPrefix(axes, toComplete), cobra.ShellCompDirectiveNoFileComp
}

func (c *Completer) CompleteOutput(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	outputs := []string{"table\tAligned columns", "json\tJSON document", "yaml\tYAML document"}
	return c.filterPrefix(outputs, toComplete), cobra.ShellCompDirectiveNoFileComp
}

func (c *Completer) CompleteCompression(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	modes := []string{"lz4\tFast (default)", "zstd\tSmaller", "none\tUncompressed"}
	return c.filterPrefix(modes, toComplete), cobra.ShellCompDirectiveNoFileComp
}

func (c *Completer) filterPrefix(items []string, prefix string) []string {
	result := []string{}
	for _, item := range items {
		itemName := strings.Split(item, "\t")[0]
		if strings.HasPrefix(strings.ToLower(itemName), strings.ToLower(prefix)) {
			result = append(result, item)
		}
	}
	return result
}

// RegisterCompletions attaches completion functions to the commands and
// flags that take formats, names or sort keys.
func RegisterCompletions(rootCmd *cobra.Command) {
	completer := NewCompleter(builtin.Registry(), nil)

	rootCmd.RegisterFlagCompletionFunc("output", completer.CompleteOutput)

	for _, path := range [][]string{{"delete"}, {"info"}} {
		if cmd, _, err := rootCmd.Find(path); err == nil && cmd != rootCmd {
			cmd.ValidArgsFunction = completer.CompleteStoredNames
			cmd.RegisterFlagCompletionFunc("format", completer.CompleteFormats)
		}
	}

	if listCmd, _, err := rootCmd.Find([]string{"list"}); err == nil && listCmd != rootCmd {
		listCmd.RegisterFlagCompletionFunc("sort", completer.CompleteSortKeys)
		listCmd.RegisterFlagCompletionFunc("format", completer.CompleteFormats)
	}

	if convertCmd, _, err := rootCmd.Find([]string{"convert"}); err == nil && convertCmd != rootCmd {
		convertCmd.ValidArgsFunction = completer.CompleteStoredNames
		convertCmd.RegisterFlagCompletionFunc("from", completer.CompleteFormats)
		convertCmd.RegisterFlagCompletionFunc("to", completer.CompleteFormats)
		convertCmd.RegisterFlagCompletionFunc("axis", completer.CompleteAxes)
		convertCmd.RegisterFlagCompletionFunc("flip", completer.CompleteAxes)
		convertCmd.RegisterFlagCompletionFunc("compression", completer.CompleteCompression)
	}
}
