package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"schemctl/pkg/catalog"
	"schemctl/pkg/filter"
	"schemctl/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	listOldestFirst    bool
	listNewestFirst    bool
	listSort           string
	listFilterExact    string
	listFilterContains string
	listFilterRegex    string
	listFilterFuzzy    string
	listFilterSimilar  string
	listFormat         string
	listSince          time.Duration
)

// EntryOutput represents a stored schematic for structured output
type EntryOutput struct {
	Path     string    `json:"path" yaml:"path"`
	Format   string    `json:"format" yaml:"format"`
	Size     int64     `json:"size" yaml:"size"`
	Modified time.Time `json:"modified" yaml:"modified"`
}

var listCmd = NewCommand("list", "List stored schematics",
	`List the files under the schematic folder, recursing into subfolders,
annotated with their detected format. Files are sorted by name unless -d
(oldest first) or -n (newest first) is given.`).
	WithAliases("ls", "all").
	WithExample(`  # Name order
  schemctl list

  # Newest first, only Sponge files
  schemctl list -n --format sponge

  # Fuzzy-filter and copy the listing
  schemctl list --filter-fuzzy cstl --copy

  # Paths close to a misspelled name
  schemctl list --filter-similar castel.schem`).
	WithApp(runList).
	Build()

func listSortKey(cmd *cobra.Command) (catalog.SortKey, error) {
	switch {
	case listOldestFirst && listNewestFirst:
		return catalog.SortName, fmt.Errorf("-d and -n are mutually exclusive")
	case listOldestFirst:
		return catalog.SortModTimeAscending, nil
	case listNewestFirst:
		return catalog.SortModTimeDescending, nil
	default:
		return catalog.ParseSortKey(listSort)
	}
}

// listPathFilter builds the path filter from the --filter-* flags. At most
// one may be set.
func listPathFilter() (*filter.StringFilter, error) {
	var set []filter.FilterMode
	var pattern string
	for _, f := range []struct {
		mode  filter.FilterMode
		value string
	}{
		{filter.FilterModeExact, listFilterExact},
		{filter.FilterModeContains, listFilterContains},
		{filter.FilterModeRegex, listFilterRegex},
		{filter.FilterModeFuzzy, listFilterFuzzy},
		{filter.FilterModeSimilar, listFilterSimilar},
	} {
		if f.value != "" {
			set = append(set, f.mode)
			pattern = f.value
		}
	}

	switch len(set) {
	case 0:
		return nil, nil
	case 1:
		return filter.NewStringFilter(pattern, set[0])
	default:
		return nil, fmt.Errorf("--filter-%s and --filter-%s are mutually exclusive", set[0], set[1])
	}
}

func runList(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
	key, err := listSortKey(cmd)
	if err != nil {
		return err
	}

	entries, err := app.Service.List(ctx, app.Config.SaveDir, key)
	if err != nil {
		return err
	}

	path, err := listPathFilter()
	if err != nil {
		return err
	}
	f := &filter.EntryFilter{Path: path, Format: listFormat}
	if listFormat != "" && !strings.EqualFold(listFormat, "unknown") {
		d, err := app.Service.Registry().Lookup(listFormat)
		if err != nil {
			return err
		}
		f.Format = d.Name
	}
	if listSince > 0 {
		f.Since = time.Now().Add(-listSince)
	}
	entries = f.Apply(entries)

	logger.Info().Int("count", len(entries)).Str("sort", key.String()).Msg("Found schematics")

	output := NewOutputWriter(outputFormat)
	output.SetWriter(cmd.OutOrStdout())
	if output.IsStructured() {
		out := make([]EntryOutput, 0, len(entries))
		for _, e := range entries {
			out = append(out, EntryOutput{Path: e.Path, Format: e.FormatName(), Size: e.Size, Modified: e.ModTime})
		}
		return output.Write(out)
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No schematics found.")
		return nil
	}

	return OutputWithCopy(cmd.OutOrStdout(), renderEntries(entries), plainEntries(entries), ShouldCopyOutput(cmd))
}

func renderEntries(entries []catalog.Entry) string {
	var b strings.Builder
	b.WriteString("Available schematics (name (format)):\n")
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(tw, "  %s\t(%s)\t%s\t%s\n", e.Path, e.FormatName(), FormatSize(e.Size), FormatTimestamp(e.ModTime))
	}
	_ = tw.Flush()
	return b.String()
}

// plainEntries is the clipboard form: one "name (format)" per line.
func plainEntries(entries []catalog.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s (%s)\n", e.Path, e.FormatName())
	}
	return b.String()
}

func init() {
	listCmd.Flags().BoolVarP(&listOldestFirst, "oldest", "d", false, "Sort by modification time, oldest first")
	listCmd.Flags().BoolVarP(&listNewestFirst, "newest", "n", false, "Sort by modification time, newest first")
	listCmd.Flags().StringVar(&listSort, "sort", "name", "Sort key (name, oldest, newest)")
	listCmd.Flags().StringVar(&listFilterExact, "filter-exact", "", "Only this path, ignoring case")
	listCmd.Flags().StringVar(&listFilterContains, "filter-contains", "", "Only paths containing this text, ignoring case")
	listCmd.Flags().StringVar(&listFilterRegex, "filter-regex", "", "Only paths matching this regular expression")
	listCmd.Flags().StringVar(&listFilterFuzzy, "filter-fuzzy", "", "Only paths fuzzy-matching this pattern")
	listCmd.Flags().StringVar(&listFilterSimilar, "filter-similar", "", "Only paths within a few edits of this name")
	listCmd.Flags().StringVar(&listFormat, "format", "", "Only files of this detected format (or 'unknown')")
	listCmd.Flags().DurationVar(&listSince, "since", 0, "Only files modified within this duration (e.g., 24h)")
}
