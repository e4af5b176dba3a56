package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"schemctl/pkg/catalog"
	"schemctl/pkg/errors"
	"schemctl/pkg/geom"
	"schemctl/pkg/logger"
	"schemctl/pkg/session"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const shellPrompt = "schemctl> "

var shellMetricsAddr string

var shellCmd = NewCommand("shell", "Interactive clipboard session",
	`Start an interactive session holding one clipboard. Load a schematic,
rotate or flip it, and save it again; pending transforms are applied when
saving. Type 'help' for the command list and 'exit' to leave.`).
	WithAliases("repl").
	WithExample(`  schemctl shell
  schemctl shell --metrics-addr 127.0.0.1:9464

  schemctl> load castle
  schemctl> rotate 90
  schemctl> save mcedit castle-turned`).
	WithApp(runShell).
	Build()

func runShell(_ context.Context, app *App, cmd *cobra.Command, args []string) error {
	// the session outlives --timeout; Ctrl-C ends it
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	addr := shellMetricsAddr
	if addr == "" {
		addr = app.Config.Metrics.Addr
	}
	if addr != "" {
		shutdown, err := serveMetrics(addr, app)
		if err != nil {
			return err
		}
		defer shutdown()
		fmt.Fprintf(cmd.OutOrStdout(), "Serving metrics on http://%s/metrics\n", addr)
	}

	sessions := session.NewManager()
	sess := sessions.Create()
	defer sessions.Close(sess.ID())

	logger.Debug().Str("session", sess.ID().String()).Msg("Shell session started")
	return newShell(app, sess, cmd.OutOrStdout()).run(ctx, cmd.InOrStdin())
}

func serveMetrics(addr string, app *App) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.Metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

type shell struct {
	app     *App
	session *session.Session
	out     io.Writer
	done    bool
}

func newShell(app *App, sess *session.Session, out io.Writer) *shell {
	return &shell{app: app, session: sess, out: out}
}

func (s *shell) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for !s.done {
		fmt.Fprint(s.out, shellPrompt)
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		s.exec(ctx, scanner.Text())
	}
	return nil
}

// exec runs one line. Failures are reported and the session continues.
func (s *shell) exec(ctx context.Context, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return
	}

	// a fresh tree per line so flag values never leak between commands
	root := s.commands()
	root.SetArgs(fields)
	root.SetOut(s.out)
	root.SetErr(s.out)
	if err := root.ExecuteContext(ctx); err != nil {
		errors.Report(s.out, err)
	}
}

func (s *shell) commands() *cobra.Command {
	root := &cobra.Command{
		Use:           "",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	var oldest, newest bool
	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls", "all"},
		Short:   "List stored schematics (-d oldest first, -n newest first)",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := catalog.SortName
			switch {
			case oldest && newest:
				return fmt.Errorf("-d and -n are mutually exclusive")
			case oldest:
				key = catalog.SortModTimeAscending
			case newest:
				key = catalog.SortModTimeDescending
			}
			entries, err := s.app.Service.List(cmd.Context(), s.app.Config.SaveDir, key)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(s.out, "No schematics found.")
				return nil
			}
			fmt.Fprint(s.out, renderEntries(entries))
			return nil
		},
	}
	list.Flags().BoolVarP(&oldest, "oldest", "d", false, "Oldest first")
	list.Flags().BoolVarP(&newest, "newest", "n", false, "Newest first")

	root.AddCommand(
		&cobra.Command{
			Use:   "load [format] <name>",
			Short: "Load a schematic into the clipboard",
			Args:  cobra.RangeArgs(1, 2),
			RunE:  s.load,
		},
		&cobra.Command{
			Use:   "save [format] <name>",
			Short: "Save the clipboard, applying pending transforms",
			Args:  cobra.RangeArgs(1, 2),
			RunE:  s.save,
		},
		&cobra.Command{
			Use:     "delete <name>",
			Aliases: []string{"rm"},
			Short:   "Delete a stored schematic",
			Args:    cobra.ExactArgs(1),
			RunE:    s.delete,
		},
		&cobra.Command{
			Use:     "formats",
			Aliases: []string{"listformats", "f"},
			Short:   "List available formats",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				for _, d := range s.app.Service.Formats() {
					fmt.Fprintf(s.out, "%s: %s\n", d.Name, strings.Join(d.Aliases, ", "))
				}
				return nil
			},
		},
		list,
		&cobra.Command{
			Use:   "rotate <degrees> [axis]",
			Short: "Rotate the clipboard by a multiple of 90 degrees (default axis y)",
			Args:  cobra.RangeArgs(1, 2),
			RunE:  s.rotate,
		},
		&cobra.Command{
			Use:   "flip <axis>",
			Short: "Mirror the clipboard along x, y or z",
			Args:  cobra.ExactArgs(1),
			RunE:  s.flip,
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Drop pending transforms",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := s.session.Reset(); err != nil {
					return err
				}
				fmt.Fprintln(s.out, "Transform reset.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Empty the clipboard",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s.session.Clear()
				fmt.Fprintln(s.out, "Clipboard cleared.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "info",
			Short: "Describe the clipboard",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				h, err := s.session.Holder()
				if err != nil {
					return err
				}
				printInfo(s.out, describe(h, 5))
				return nil
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show operation counts and timings for this session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s.stats()
				return nil
			},
		},
		&cobra.Command{
			Use:     "exit",
			Aliases: []string{"quit", "q"},
			Short:   "Leave the shell",
			Args:    cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				s.done = true
			},
		},
	)
	return root
}

func (s *shell) load(cmd *cobra.Command, args []string) error {
	formatName, name := splitFormatArg(args)
	h, err := s.app.Service.Load(cmd.Context(), s.app.Config.SaveDir, formatName, name)
	if err != nil {
		return withSuggestions(cmd.Context(), s.app, err, name)
	}
	s.session.SetClipboard(h)
	fmt.Fprintf(s.out, "%s loaded. Paste it with //paste\n", name)
	return nil
}

func (s *shell) save(cmd *cobra.Command, args []string) error {
	formatName, name := splitFormatArg(args)
	h, err := s.session.Holder()
	if err != nil {
		return err
	}
	target, err := s.app.Service.Save(cmd.Context(), s.app.Config.SaveDir, formatName, name, h)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s saved.\n", target.Path.Rel)
	return nil
}

func (s *shell) delete(cmd *cobra.Command, args []string) error {
	p, err := s.app.Service.Delete(cmd.Context(), s.app.Config.SaveDir, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s has been deleted.\n", p.Rel)
	return nil
}

func (s *shell) rotate(cmd *cobra.Command, args []string) error {
	deg, err := geom.ParseRightAngle(args[0])
	if err != nil {
		return err
	}
	axis := geom.AxisY
	if len(args) == 2 {
		if axis, err = geom.ParseAxis(args[1]); err != nil {
			return err
		}
	}
	if err := s.session.Apply(geom.Rotate(axis, deg)); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Clipboard rotated by %g degrees around %s.\n", deg, axis)
	return nil
}

func (s *shell) flip(cmd *cobra.Command, args []string) error {
	axis, err := geom.ParseAxis(args[0])
	if err != nil {
		return err
	}
	if err := s.session.Apply(geom.Flip(axis)); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Clipboard flipped along %s.\n", axis)
	return nil
}

func (s *shell) stats() {
	snap := s.app.Metrics.Snapshot()
	if len(snap) == 0 {
		fmt.Fprintln(s.out, "No operations yet.")
		return
	}
	bold := color.New(color.Bold)
	tw := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	_, _ = bold.Fprintln(tw, "OPERATION\tOK\tFAILED\tTOTAL TIME")
	for _, op := range snap {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", op.Operation, op.Success, op.Errors, FormatElapsed(op.Total))
	}
	_ = tw.Flush()
}

func init() {
	shellCmd.Flags().StringVar(&shellMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g., 127.0.0.1:9464)")
}
