package schematic

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"schemctl/pkg/cache"
	"schemctl/pkg/catalog"
	"schemctl/pkg/clipboard"
	"schemctl/pkg/errors"
	"schemctl/pkg/format/builtin"
	"schemctl/pkg/format/formattest"
	"schemctl/pkg/geom"
	"schemctl/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func newService(t *testing.T, opts Options) *Service {
	t.Helper()
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	s, err := NewService(builtin.Registry(), opts)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return s
}

func TestNewService(t *testing.T) {
	s := newService(t, Options{})
	if s.DefaultFormat().Name != "sponge" {
		t.Errorf("default format = %s, want sponge", s.DefaultFormat().Name)
	}
	if len(s.Formats()) != 4 {
		t.Errorf("Formats() = %d entries, want 4", len(s.Formats()))
	}

	_, err := NewService(builtin.Registry(), Options{DefaultFormat: "zip"})
	if !errors.IsKind(err, errors.KindFormatNotFound) {
		t.Errorf("NewService(zip) error = %v, want format not found", err)
	}
	if _, err := NewService(nil, Options{}); err == nil {
		t.Error("NewService(nil) succeeded")
	}
}

func TestSaveLoadEveryFormat(t *testing.T) {
	ctx := context.Background()
	for _, d := range builtin.Registry().All() {
		t.Run(d.Name, func(t *testing.T) {
			base := t.TempDir()
			s := newService(t, Options{})
			want := formattest.Sample(t)

			target, err := s.Save(ctx, base, d.Aliases[len(d.Aliases)-1], "builds/house", clipboard.NewHolder(want))
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if target.Format.Name != d.Name {
				t.Errorf("saved as %s, want %s", target.Format.Name, d.Name)
			}
			if wantRel := "builds/house." + d.Extension(); target.Path.Rel != wantRel {
				t.Errorf("saved to %s, want %s", target.Path.Rel, wantRel)
			}

			h, err := s.Load(ctx, base, "", target.Path.Rel)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if !want.Equal(h.Clipboard) {
				t.Errorf("round trip differs: %s", want.Diff(h.Clipboard))
			}
			if !h.Transform.IsIdentity() {
				t.Errorf("loaded transform = %s, want identity", h.Transform)
			}
		})
	}
}

func TestSaveBakesTransform(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := newService(t, Options{})

	c := clipboard.New(geom.NewRegion(geom.V(0, 0, 0), geom.V(1, 1, 1)))
	if err := c.SetBlock(geom.V(1, 0, 0), clipboard.MustParseBlockState("minecraft:gold_block")); err != nil {
		t.Fatal(err)
	}
	h := clipboard.NewHolder(c)
	h.Transform = geom.RotateY(90)

	if _, err := s.Save(ctx, base, "", "turned", h); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load(ctx, base, "", "turned")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	wantRegion := geom.NewRegion(geom.V(0, 0, -1), geom.V(1, 1, 0))
	if got.Clipboard.Region() != wantRegion {
		t.Errorf("region = %s, want %s", got.Clipboard.Region(), wantRegion)
	}
	if b := got.Clipboard.Block(geom.V(0, 0, -1)); b.Name != "minecraft:gold_block" {
		t.Errorf("block at (0,0,-1) = %s, want gold_block", b)
	}
	if got.Clipboard.Count() != 1 {
		t.Errorf("Count() = %d, want 1", got.Clipboard.Count())
	}
	// the holder itself is untouched
	if !h.Clipboard.Equal(c) || h.Transform.IsIdentity() {
		t.Error("Save() modified the holder")
	}
}

func TestLoadExtensionFallback(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := newService(t, Options{})

	if _, err := s.Save(ctx, base, "json", "house", clipboard.NewHolder(formattest.Sample(t))); err != nil {
		t.Fatal(err)
	}
	h, err := s.Load(ctx, base, "", "house")
	if err != nil {
		t.Fatalf("Load(house) error = %v", err)
	}
	if h.Clipboard.Count() != formattest.Sample(t).Count() {
		t.Errorf("loaded %d blocks", h.Clipboard.Count())
	}

	// an explicit format does not fall back
	if _, err := s.Load(ctx, base, "mcedit", "house"); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("Load(mcedit, house) error = %v, want not found", err)
	}
}

func TestLoadSniffsForeignExtension(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := newService(t, Options{})

	target, err := s.Save(ctx, base, "bundle", "castle", clipboard.NewHolder(formattest.Sample(t)))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(target.Path.Abs, filepath.Join(base, "castle.dat")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx, base, "", "castle.dat"); err != nil {
		t.Errorf("Load(castle.dat) error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(base, "notes.txt"), []byte("not a schematic"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx, base, "", "notes.txt"); !errors.IsKind(err, errors.KindUnknownFormat) {
		t.Errorf("Load(notes.txt) error = %v, want unknown format", err)
	}
}

func TestNotFoundNamesFileAsTyped(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := newService(t, Options{})

	tests := []struct {
		name     string
		format   string
		filename string
	}{
		{"foreign extension", "", "castle.dat"},
		{"no extension", "", "castle"},
		{"registered extension", "", "castle.schem"},
		{"explicit format", "mcedit", "castle"},
		{"nested", "", "walls/north"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Load(ctx, base, tt.format, tt.filename)
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Kind != errors.KindNotFound {
				t.Fatalf("Load(%q) error = %v, want not found", tt.filename, err)
			}
			if e.Subject != tt.filename {
				t.Errorf("Subject = %q, want %q", e.Subject, tt.filename)
			}
			if got := errors.Translate(err).Message; got != "Schematic "+tt.filename+" does not exist!" {
				t.Errorf("Translate() = %q", got)
			}
		})
	}

	if _, err := s.Delete(ctx, base, "castle.dat"); err == nil {
		t.Fatal("Delete(castle.dat) succeeded")
	} else if e, ok := err.(*errors.Error); !ok || e.Subject != "castle.dat" {
		t.Errorf("Delete(castle.dat) error = %v, want subject castle.dat", err)
	}
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := newService(t, Options{})
	if err := os.WriteFile(filepath.Join(base, "broken.schem"), []byte("SPNG"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		format   string
		filename string
		kind     errors.Kind
	}{
		{"unknown alias", "zip", "house", errors.KindFormatNotFound},
		{"missing", "", "nothing", errors.KindNotFound},
		{"traversal", "", "../outside", errors.KindPathEscape},
		{"absolute", "sponge", "/etc/passwd", errors.KindPathEscape},
		{"malformed", "", "broken", errors.KindDecode},
		{"wrong format", "json", "broken.schem", errors.KindDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Load(ctx, base, tt.format, tt.filename)
			if !errors.IsKind(err, tt.kind) {
				t.Errorf("Load() error = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestSaveErrors(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := newService(t, Options{})
	h := clipboard.NewHolder(formattest.Sample(t))

	if _, err := s.Save(ctx, base, "", "x", nil); !errors.IsKind(err, errors.KindEmptyClipboard) {
		t.Errorf("Save(nil) error = %v, want empty clipboard", err)
	}
	if _, err := s.Save(ctx, base, "", "x", &clipboard.Holder{}); !errors.IsKind(err, errors.KindEmptyClipboard) {
		t.Errorf("Save(empty holder) error = %v, want empty clipboard", err)
	}
	if _, err := s.Save(ctx, base, "zip", "x", h); !errors.IsKind(err, errors.KindFormatNotFound) {
		t.Errorf("Save(zip) error = %v, want format not found", err)
	}
	if _, err := s.Save(ctx, base, "", "../x", h); !errors.IsKind(err, errors.KindPathEscape) {
		t.Errorf("Save(../x) error = %v, want path escape", err)
	}
	entries, err := os.ReadDir(base)
	if err != nil || len(entries) != 0 {
		t.Errorf("failed saves left %v behind (%v)", entries, err)
	}
}

func TestSaveBakeFailureCreatesNoDirectories(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := newService(t, Options{})

	h := clipboard.NewHolder(formattest.Sample(t))
	h.Transform = geom.Scale(4096, 4096, 4096)
	if _, err := s.Save(ctx, base, "", "deep/nested/house", h); err == nil {
		t.Fatal("Save() of an oversized transform succeeded")
	}
	if _, err := os.Stat(filepath.Join(base, "deep")); !os.IsNotExist(err) {
		t.Errorf("failed bake left directories behind: %v", err)
	}
}

func TestSaveEncodeErrorLeavesFile(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := newService(t, Options{})

	c := clipboard.New(geom.RegionOfSize(geom.V(0, 0, 0), geom.V(17, 1, 16)))
	i := 0
	c.ForEach(func(pos geom.Vector3, _ clipboard.BlockState) {
		state := clipboard.BlockState{Name: fmt.Sprintf("minecraft:block_%d", i)}
		if err := c.SetBlock(pos, state); err != nil {
			t.Fatal(err)
		}
		i++
	})

	target, err := s.Save(ctx, base, "mcedit", "crowded", clipboard.NewHolder(c))
	if !errors.IsKind(err, errors.KindEncode) {
		t.Fatalf("Save() error = %v, want encode error", err)
	}
	if target.Format != nil {
		t.Errorf("Save() target = %+v on failure", target)
	}
	// writes are not atomic; whatever was created stays
	if _, err := os.Stat(filepath.Join(base, "crowded.schematic")); err != nil {
		t.Errorf("expected partial file: %v", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := newService(t, Options{})

	if _, err := s.Save(ctx, base, "mce", "old", clipboard.NewHolder(formattest.Sample(t))); err != nil {
		t.Fatal(err)
	}
	p, err := s.Delete(ctx, base, "old")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if p.Rel != "old.schematic" {
		t.Errorf("deleted %s, want old.schematic", p.Rel)
	}
	if _, err := os.Stat(p.Abs); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}

	if _, err := s.Delete(ctx, base, "old"); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("second Delete() error = %v, want not found", err)
	}
	if _, err := s.Delete(ctx, base, "../../etc/hosts"); !errors.IsKind(err, errors.KindPathEscape) {
		t.Errorf("Delete(traversal) error = %v, want path escape", err)
	}
}

func TestDeleteDropsCachedDetection(t *testing.T) {
	ctx := context.Background()
	real := t.TempDir()
	link := filepath.Join(t.TempDir(), "saves")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	cm, err := cache.NewManager(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cm.Close()
	s := newService(t, Options{Cache: cm})

	for _, base := range []string{real, link} {
		t.Run(filepath.Base(base), func(t *testing.T) {
			if _, err := s.Save(ctx, base, "", "castles/keep", clipboard.NewHolder(formattest.Sample(t))); err != nil {
				t.Fatal(err)
			}
			if _, err := s.List(ctx, base, catalog.SortName); err != nil {
				t.Fatal(err)
			}
			if rows, _ := cm.GetDetections(); len(rows) != 1 {
				t.Fatalf("cache rows after List = %v, want 1", rows)
			}

			if _, err := s.Delete(ctx, base, "castles/keep"); err != nil {
				t.Fatal(err)
			}
			if rows, _ := cm.GetDetections(); len(rows) != 0 {
				t.Errorf("cache rows after Delete = %v, want none", rows)
			}
		})
	}
}

func TestDeleteReadOnlyDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	ctx := context.Background()
	base := t.TempDir()
	s := newService(t, Options{})

	if _, err := s.Save(ctx, base, "", "locked/keep", clipboard.NewHolder(formattest.Sample(t))); err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(base, "locked")
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(dir, 0o755)

	if _, err := s.Delete(ctx, base, "locked/keep"); !errors.IsKind(err, errors.KindDeleteFailed) {
		t.Errorf("Delete() error = %v, want delete failed", err)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := newService(t, Options{})

	for _, name := range []string{"b", "a", "sub/c"} {
		if _, err := s.Save(ctx, base, "", name, clipboard.NewHolder(formattest.Sample(t))); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := s.List(ctx, base, catalog.SortName)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"a.schem", "b.schem", "sub/c.schem"}
	if len(entries) != len(want) {
		t.Fatalf("List() = %v", entries)
	}
	for i, e := range entries {
		if e.Path != want[i] || e.FormatName() != "sponge" {
			t.Errorf("entry %d = %s (%s), want %s (sponge)", i, e.Path, e.FormatName(), want[i])
		}
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newService(t, Options{})

	if _, err := s.Load(ctx, t.TempDir(), "", "x"); !errors.IsExitCode(err, errors.ExitCodeCancellation) {
		t.Errorf("Load() error = %v, want cancellation", err)
	}
	if _, err := s.Save(ctx, t.TempDir(), "", "x", clipboard.NewHolder(formattest.Sample(t))); !errors.IsExitCode(err, errors.ExitCodeCancellation) {
		t.Errorf("Save() error = %v, want cancellation", err)
	}
}

func TestMetricsRecorded(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	rec := metrics.NewPrometheus()
	s := newService(t, Options{Metrics: rec})

	if _, err := s.Save(ctx, base, "", "m", clipboard.NewHolder(formattest.Sample(t))); err != nil {
		t.Fatal(err)
	}
	_, _ = s.Load(ctx, base, "", "m")
	_, _ = s.Load(ctx, base, "", "missing")

	tests := []struct {
		operation string
		result    string
		expected  float64
	}{
		{"save", metrics.ResultSuccess, 1},
		{"load", metrics.ResultSuccess, 1},
		{"load", metrics.ResultError, 1},
		{"delete", metrics.ResultSuccess, 0},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(rec.Counter(tt.operation, tt.result)); got != tt.expected {
			t.Errorf("%s/%s = %v, want %v", tt.operation, tt.result, got, tt.expected)
		}
	}
}

func TestConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := newService(t, Options{})
	sample := formattest.Sample(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Save(ctx, base, "", "shared", clipboard.NewHolder(sample.Clone()))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Save() error = %v", err)
		}
	}

	h, err := s.Load(ctx, base, "", "shared")
	if err != nil || !sample.Equal(h.Clipboard) {
		t.Errorf("Load() after concurrent saves = %v", err)
	}
	if n := s.locks.len(); n != 0 {
		t.Errorf("lock table holds %d entries after release", n)
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := newService(t, Options{})

	if _, err := s.Save(ctx, base, "weclip", "tower", clipboard.NewHolder(formattest.Sample(t))); err != nil {
		t.Fatal(err)
	}
	p, err := s.Resolve(base, "tower")
	if err != nil || p.Rel != "tower.weclip" || p.Ext != "weclip" {
		t.Errorf("Resolve(tower) = %+v, %v", p, err)
	}
	if _, err := s.Resolve(base, "gone"); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("Resolve(gone) error = %v, want not found", err)
	}
}
