package cmd

import (
	"context"
	"fmt"

	"schemctl/pkg/catalog"
	"schemctl/pkg/errors"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the format detection cache",
	Long: `The detection cache remembers which format each stored file is in so
listings do not have to sniff unchanged files again.`,
}

var cachePruneCmd = NewCommand("prune", "Drop cache rows for files that no longer exist", "").
	WithApp(runCachePrune).
	Build()

var cacheClearCmd = NewCommand("clear", "Remove every cached detection", "").
	WithApp(runCacheClear).
	Build()

func runCachePrune(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
	if app.Cache == nil {
		return errCacheDisabled()
	}

	// listing refreshes rows for the files that are still there
	entries, err := app.Service.List(ctx, app.Config.SaveDir, catalog.SortName)
	if err != nil {
		return err
	}
	keep := make(map[string]bool, len(entries))
	for _, e := range entries {
		keep[catalog.CacheKey(app.Config.SaveDir, e.Path)] = true
	}

	if IsDryRun() {
		existing, err := app.Cache.GetDetections()
		if err != nil {
			return err
		}
		stale := 0
		for path := range existing {
			if !keep[path] {
				stale++
			}
		}
		PrintDryRunAction(cmd.OutOrStdout(), "prune the detection cache", map[string]string{
			"Rows": fmt.Sprintf("%d stale of %d", stale, len(existing)),
		})
		return nil
	}

	removed, err := app.Cache.Prune(keep)
	if err != nil {
		return errors.WrapWithCode(err, errors.ExitCodeFileOperation, "failed to prune detection cache")
	}
	_, _ = color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Pruned %d stale row(s).\n", removed)
	return nil
}

func runCacheClear(ctx context.Context, app *App, cmd *cobra.Command, args []string) error {
	if app.Cache == nil {
		return errCacheDisabled()
	}

	path, _ := app.Config.CacheFile()
	confirmed, err := ConfirmDestructive(cmd.OutOrStdout(), "clear the detection cache", map[string]string{"Database": path})
	if err != nil || !confirmed {
		return err
	}

	if err := app.Cache.ClearCache(); err != nil {
		return errors.WrapWithCode(err, errors.ExitCodeFileOperation, "failed to clear detection cache")
	}
	_, _ = color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "Detection cache cleared.")
	return nil
}

func errCacheDisabled() error {
	return errors.NewWithSuggestion(errors.ExitCodeConfig,
		"the detection cache is disabled",
		"Set catalog.cache: true in the config or SCHEMCTL_CACHE=true")
}
