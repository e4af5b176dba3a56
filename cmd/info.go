package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"

	"schemctl/pkg/catalog"
	"schemctl/pkg/clipboard"
	"schemctl/pkg/errors"
	"schemctl/pkg/filter"
	"schemctl/pkg/geom"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ClipboardInfo represents a loaded clipboard for structured output
type ClipboardInfo struct {
	File       string              `json:"file,omitempty" yaml:"file,omitempty"`
	Format     string              `json:"format,omitempty" yaml:"format,omitempty"`
	Region     string              `json:"region" yaml:"region"`
	Dimensions [3]int              `json:"dimensions" yaml:"dimensions"`
	Origin     [3]int              `json:"origin" yaml:"origin"`
	Volume     int                 `json:"volume" yaml:"volume"`
	Blocks     int                 `json:"blocks" yaml:"blocks"`
	Palette    int                 `json:"palette" yaml:"palette"`
	Transform  string              `json:"transform" yaml:"transform"`
	World      clipboard.WorldData `json:"world" yaml:"world"`
	TopBlocks  []BlockCount        `json:"top_blocks,omitempty" yaml:"top_blocks,omitempty"`
}

type BlockCount struct {
	State string `json:"state" yaml:"state"`
	Count int    `json:"count" yaml:"count"`
}

var infoCmd = NewCommand("info [format] <name>", "Describe a stored schematic",
	`Load a schematic and print its region, origin, block counts and palette.
Without a format the file's extension and then its content decide.`).
	WithExample(`  schemctl info castle
  schemctl info mcedit old/house -o yaml`).
	WithArgsRange(1, 2).
	WithApp(runInfo).
	Build()

func runInfo(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
	formatName, name := splitFormatArg(args)

	h, err := app.Service.Load(ctx, app.Config.SaveDir, formatName, name)
	if err != nil {
		return withSuggestions(ctx, app, err, name)
	}

	info := describe(h, 5)
	info.File = name
	if p, err := app.Service.Resolve(app.Config.SaveDir, name); err == nil {
		info.File = p.Rel
		if d := app.Service.Registry().ByExtension(p.Ext); d != nil && formatName == "" {
			info.Format = d.Name
		}
	}
	if formatName != "" {
		if d, err := app.Service.Registry().Lookup(formatName); err == nil {
			info.Format = d.Name
		}
	}

	output := NewOutputWriter(outputFormat)
	output.SetWriter(cmd.OutOrStdout())
	if output.IsStructured() {
		return output.Write(info)
	}
	printInfo(cmd.OutOrStdout(), info)
	return nil
}

// splitFormatArg reads "[format] <name>".
func splitFormatArg(args []string) (formatName, name string) {
	if len(args) >= 2 {
		return args[0], args[1]
	}
	if len(args) == 1 {
		return "", args[0]
	}
	return "", ""
}

func describe(h *clipboard.Holder, top int) ClipboardInfo {
	c := h.Clipboard
	dims := c.Dimensions()
	origin := c.Origin()

	counts := make(map[string]int)
	c.ForEach(func(_ geom.Vector3, state clipboard.BlockState) {
		if !state.IsAir() {
			counts[state.String()]++
		}
	})
	var tops []BlockCount
	for state, n := range counts {
		tops = append(tops, BlockCount{State: state, Count: n})
	}
	sort.Slice(tops, func(i, j int) bool {
		if tops[i].Count != tops[j].Count {
			return tops[i].Count > tops[j].Count
		}
		return tops[i].State < tops[j].State
	})
	if len(tops) > top {
		tops = tops[:top]
	}

	palette, _ := c.PaletteData()
	return ClipboardInfo{
		Region:     c.Region().String(),
		Dimensions: [3]int{dims.X, dims.Y, dims.Z},
		Origin:     [3]int{origin.X, origin.Y, origin.Z},
		Volume:     c.Region().Volume(),
		Blocks:     c.Count(),
		Palette:    len(palette),
		Transform:  h.Transform.String(),
		World:      h.World,
		TopBlocks:  tops,
	}
}

func printInfo(w io.Writer, info ClipboardInfo) {
	cyan := color.New(color.FgCyan)
	row := func(key, format string, args ...any) {
		_, _ = cyan.Fprintf(w, "%-11s", key+":")
		fmt.Fprintf(w, format+"\n", args...)
	}

	if info.File != "" {
		row("File", "%s", info.File)
	}
	if info.Format != "" {
		row("Format", "%s", info.Format)
	}
	row("Region", "%s", info.Region)
	row("Size", "%d x %d x %d (%d cells)", info.Dimensions[0], info.Dimensions[1], info.Dimensions[2], info.Volume)
	row("Origin", "(%d, %d, %d)", info.Origin[0], info.Origin[1], info.Origin[2])
	row("Blocks", "%d non-air, %d palette entries", info.Blocks, info.Palette)
	row("Transform", "%s", info.Transform)
	row("World", "data version %d, %s", info.World.DataVersion, info.World.Platform)
	for i, b := range info.TopBlocks {
		key := ""
		if i == 0 {
			key = "Top blocks"
		}
		_, _ = cyan.Fprintf(w, "%-11s", key)
		fmt.Fprintf(w, "%6d  %s\n", b.Count, b.State)
	}
}

// withSuggestions adds "did you mean" names to a NotFound error.
func withSuggestions(ctx context.Context, app *App, err error, name string) error {
	if !errors.IsKind(err, errors.KindNotFound) {
		return err
	}
	entries, listErr := app.Service.List(ctx, app.Config.SaveDir, catalog.SortName)
	if listErr != nil {
		return err
	}
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	hits := filter.Suggest(name, paths, 3)
	if len(hits) == 0 {
		return err
	}

	orig, ok := err.(*errors.Error)
	if !ok {
		return err
	}
	wrapped := *orig
	wrapped.Suggestion = "Did you mean:"
	for _, h := range hits {
		wrapped.Suggestion += "\n  - " + h
	}
	return &wrapped
}
