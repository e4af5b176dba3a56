package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// FormatOutput represents a format for structured output
type FormatOutput struct {
	Name      string   `json:"name" yaml:"name"`
	Aliases   []string `json:"aliases" yaml:"aliases"`
	Extension string   `json:"extension" yaml:"extension"`
	Default   bool     `json:"default" yaml:"default"`
}

var formatsCmd = NewCommand("formats", "List available schematic formats",
	`List every registered schematic format with its aliases and file extension.
Any alias can be passed wherever a format is expected.`).
	WithAliases("listformats", "f").
	WithExample(`  schemctl formats
  schemctl formats -o json`).
	WithApp(runFormats).
	Build()

func runFormats(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
	def := app.Service.DefaultFormat().Name
	formats := app.Service.Formats()

	out := make([]FormatOutput, 0, len(formats))
	for _, d := range formats {
		out = append(out, FormatOutput{
			Name:      d.Name,
			Aliases:   d.Aliases,
			Extension: d.Extension(),
			Default:   d.Name == def,
		})
	}

	output := NewOutputWriter(outputFormat)
	output.SetWriter(cmd.OutOrStdout())
	if output.IsStructured() {
		return output.Write(out)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Available formats (name: aliases):")
	bold := color.New(color.Bold)
	for _, f := range out {
		_, _ = bold.Fprintf(w, "%s", f.Name)
		fmt.Fprintf(w, ": %s (.%s)", strings.Join(f.Aliases, ", "), f.Extension)
		if f.Default {
			fmt.Fprint(w, " [default]")
		}
		fmt.Fprintln(w)
	}
	return nil
}
