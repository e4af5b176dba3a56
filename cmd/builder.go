package cmd

import (
	"context"
	"fmt"
	"time"

	"schemctl/pkg/cache"
	"schemctl/pkg/catalog"
	"schemctl/pkg/config"
	"schemctl/pkg/format/builtin"
	"schemctl/pkg/logger"
	"schemctl/pkg/metrics"
	"schemctl/pkg/schematic"

	"github.com/spf13/cobra"
)

// App is what a command needs to run schematic operations.
type App struct {
	Config  *config.Config
	Service *schematic.Service
	Metrics *metrics.Prometheus
	Cache   *cache.Manager
}

// NewApp wires the service from cfg. Close releases the detection cache.
func NewApp(cfg *config.Config) (*App, error) {
	registry, err := builtin.NewRegistry(builtin.Options{BundleCompression: cfg.Bundle.Compression})
	if err != nil {
		return nil, fmt.Errorf("failed to build format registry: %w", err)
	}

	app := &App{Config: cfg, Metrics: metrics.NewPrometheus()}

	var dc catalog.DetectionCache
	if cfg.Catalog.Cache {
		if app.Cache, err = openCache(cfg); err != nil {
			// listing still works, just slower
			logger.Warn().Err(err).Msg("detection cache disabled")
		} else {
			dc = app.Cache
		}
	}

	log := logger.GetLogger()
	app.Service, err = schematic.NewService(registry, schematic.Options{
		Logger:        &log,
		Metrics:       app.Metrics,
		Cache:         dc,
		DefaultFormat: cfg.DefaultFormat,
		World:         cfg.World,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func openCache(cfg *config.Config) (*cache.Manager, error) {
	path, err := cfg.CacheFile()
	if err != nil {
		return nil, err
	}
	return cache.NewManagerWithConfig(path, cache.CacheConfig{
		DetectionsTTL: time.Duration(cfg.Catalog.CacheTTLDays) * 24 * time.Hour,
	})
}

func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			logger.Debug().Err(err).Msg("failed to close detection cache")
		}
	}
}

type CommandBuilder struct {
	cmd *cobra.Command
}

func NewCommand(name, short, long string) *CommandBuilder {
	return &CommandBuilder{
		cmd: &cobra.Command{
			Use:     name,
			Short:   short,
			Long:    long,
			Example: "",
		},
	}
}

func (b *CommandBuilder) WithAliases(aliases ...string) *CommandBuilder {
	b.cmd.Aliases = aliases
	return b
}

func (b *CommandBuilder) WithExample(example string) *CommandBuilder {
	b.cmd.Example = example
	return b
}

// WithApp runs fn with a wired App and a context bounded by --timeout.
func (b *CommandBuilder) WithApp(fn func(ctx context.Context, app *App, cmd *cobra.Command, args []string) error) *CommandBuilder {
	b.cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx, cancel := GetContext()
		defer cancel()

		app, err := NewApp(Config())
		if err != nil {
			return err
		}
		defer app.Close()
		return fn(ctx, app, cmd, args)
	}
	return b
}

func (b *CommandBuilder) WithArgsRange(minArgs, maxArgs int) *CommandBuilder {
	b.cmd.Args = cobra.RangeArgs(minArgs, maxArgs)
	return b
}

func (b *CommandBuilder) Build() *cobra.Command {
	return b.cmd
}

func AddCommands(parent *cobra.Command, children ...*cobra.Command) {
	for _, child := range children {
		parent.AddCommand(child)
	}
}
