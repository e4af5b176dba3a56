package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"schemctl/pkg/clipboard"
	"schemctl/pkg/config"
	"schemctl/pkg/format/formattest"
	"schemctl/pkg/geom"
	"schemctl/pkg/logger"
	"schemctl/pkg/session"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	logger.SetOutput(io.Discard)

	cfg := config.Default()
	cfg.SaveDir = t.TempDir()
	cfg.Catalog.Cache = false

	app, err := NewApp(cfg)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

func runScript(t *testing.T, app *App, script string) (string, *session.Session) {
	t.Helper()
	sess := session.NewManager().Create()
	var out bytes.Buffer
	if err := newShell(app, sess, &out).run(context.Background(), strings.NewReader(script)); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	return out.String(), sess
}

func TestShellSession(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	if _, err := app.Service.Save(ctx, app.Config.SaveDir, "", "house", clipboard.NewHolder(formattest.Sample(t))); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	script := strings.Join([]string{
		"info",
		"save house",
		"# comments and blank lines are skipped",
		"",
		"load missing",
		"load house",
		"rotate 45",
		"rotate 90",
		"flip x",
		"save mcedit house-turned",
		"list -d -n",
		"bogus",
		"stats",
		"exit",
		"formats",
	}, "\n")
	out, sess := runScript(t, app, script)

	for _, want := range []string{
		"Your clipboard is empty",
		"Schematic missing",
		"house loaded.",
		"not a multiple of 90 degrees",
		"Clipboard rotated by 90 degrees around y.",
		"Clipboard flipped along x.",
		"house-turned.schematic saved.",
		"mutually exclusive",
		`unknown command "bogus"`,
		"OPERATION",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "sponge: ") {
		t.Errorf("commands after exit should not run:\n%s", out)
	}

	if _, err := os.Stat(filepath.Join(app.Config.SaveDir, "house-turned.schematic")); err != nil {
		t.Errorf("saved file missing: %v", err)
	}

	want := geom.RotateY(90).Combine(geom.Flip(geom.AxisX))
	if got := sess.Transform(); !got.Equal(want) {
		t.Errorf("session transform = %v, want %v", got, want)
	}
}

func TestShellResetAndClear(t *testing.T) {
	app := newTestApp(t)
	if _, err := app.Service.Save(context.Background(), app.Config.SaveDir, "json", "tower", clipboard.NewHolder(formattest.Sample(t))); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	out, sess := runScript(t, app, "load json tower\nrotate 180\nreset\nclear\ninfo\n")

	if !strings.Contains(out, "Transform reset.") || !strings.Contains(out, "Clipboard cleared.") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if strings.Count(out, "Your clipboard is empty") != 1 {
		t.Errorf("info after clear should report an empty clipboard once:\n%s", out)
	}
	if _, err := sess.Holder(); err == nil {
		t.Error("Holder() after clear should fail")
	}
}

func TestShellListAndDelete(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	for _, name := range []string{"b-side", "a-side"} {
		if _, err := app.Service.Save(ctx, app.Config.SaveDir, "", name, clipboard.NewHolder(formattest.Sample(t))); err != nil {
			t.Fatalf("Save(%s) error = %v", name, err)
		}
	}

	out, _ := runScript(t, app, "list\ndelete a-side\ndelete a-side\nlist\n")

	first := strings.Index(out, "a-side.schem")
	second := strings.Index(out, "b-side.schem")
	if first < 0 || second < 0 || first > second {
		t.Errorf("list should sort by name:\n%s", out)
	}
	if !strings.Contains(out, "a-side.schem has been deleted.") {
		t.Errorf("delete output missing:\n%s", out)
	}
	if !strings.Contains(out, "does not exist") {
		t.Errorf("second delete should report a missing file:\n%s", out)
	}
}

func TestShellEOF(t *testing.T) {
	app := newTestApp(t)
	out, _ := runScript(t, app, "formats")
	if !strings.Contains(out, "sponge: sponge, schem") {
		t.Errorf("formats output missing:\n%s", out)
	}
	if !strings.HasSuffix(out, shellPrompt+"\n") {
		t.Errorf("shell should end on a fresh line at EOF:\n%q", out)
	}
}
