package cmd

import (
	"context"
	"fmt"

	"schemctl/pkg/logger"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var deleteCmd = NewCommand("delete <name>", "Delete a stored schematic",
	`Delete a schematic from the schematic folder. The name may omit the
extension. Asks for confirmation unless -y is given or assume_yes is set.`).
	WithAliases("rm", "d").
	WithExample(`  schemctl delete old/house
  schemctl delete castle.schem -y
  schemctl delete castle --dry-run`).
	WithArgsRange(1, 1).
	WithApp(runDelete).
	Build()

func runDelete(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
	name := args[0]
	w := cmd.OutOrStdout()

	p, err := app.Service.Resolve(app.Config.SaveDir, name)
	if err != nil {
		return withSuggestions(ctx, app, err, name)
	}

	confirmed, err := ConfirmDestructive(w, "delete a schematic", map[string]string{
		"File":   p.Rel,
		"Folder": app.Config.SaveDir,
	})
	if err != nil {
		return err
	}
	if !confirmed {
		if !IsDryRun() {
			fmt.Fprintln(w, "Aborted.")
		}
		return nil
	}

	deleted, err := app.Service.Delete(ctx, app.Config.SaveDir, name)
	if err != nil {
		return err
	}

	logger.Info().Str("file", deleted.Rel).Msg("Deleted schematic")
	green := color.New(color.FgGreen)
	_, _ = green.Fprintf(w, "✓ %s has been deleted.\n", deleted.Rel)
	return nil
}
