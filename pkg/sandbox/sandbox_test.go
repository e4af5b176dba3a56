package sandbox

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"schemctl/pkg/errors"
)

var allowed = []string{"schem", "schematic", "weclip", "json"}

func TestClean(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		kind     errors.Kind
	}{
		{name: "plain", input: "house", expected: "house"},
		{name: "nested", input: "castles/keep.schem", expected: "castles/keep.schem"},
		{name: "backslash separator", input: `castles\keep`, expected: "castles/keep"},
		{name: "dot segments", input: "a/./b/../c", expected: "a/c"},
		{name: "punctuation", input: "My House (v2) [final]!", expected: "My House (v2) [final]!"},
		{name: "empty", input: "", kind: errors.KindInvalidFilename},
		{name: "nul byte", input: "a\x00b", kind: errors.KindInvalidFilename},
		{name: "colon", input: "ab:c", kind: errors.KindInvalidFilename},
		{name: "unicode", input: "häuschen", kind: errors.KindInvalidFilename},
		{name: "only dot", input: ".", kind: errors.KindInvalidFilename},
		{name: "parent", input: "..", kind: errors.KindPathEscape},
		{name: "traversal", input: "../../etc/passwd", kind: errors.KindPathEscape},
		{name: "hidden traversal", input: "a/../../b", kind: errors.KindPathEscape},
		{name: "backslash traversal", input: `..\..\windows`, kind: errors.KindPathEscape},
		{name: "absolute", input: "/etc/passwd", kind: errors.KindPathEscape},
		{name: "backslash absolute", input: `\etc\passwd`, kind: errors.KindPathEscape},
		{name: "drive letter", input: `C:\Windows`, kind: errors.KindPathEscape},
		{name: "lower drive letter", input: "d:/x", kind: errors.KindPathEscape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Clean(tt.input)
			if tt.kind != errors.KindGeneric {
				if !errors.IsKind(err, tt.kind) {
					t.Errorf("Clean(%q) error = %v, want kind %v", tt.input, err, tt.kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("Clean(%q) error = %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestResolveForWriteExtensions(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name    string
		input   string
		wantRel string
		wantExt string
	}{
		{"default appended", "house", "house.schem", "schem"},
		{"allowed kept", "house.schematic", "house.schematic", "schematic"},
		{"allowed kept ignoring case", "House.SCHEM", "House.SCHEM", "schem"},
		{"unknown extension gets default", "house.txt", "house.txt.schem", "schem"},
		{"nested created", "a/b/c", "a/b/c.schem", "schem"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ResolveForWrite(base, tt.input, "schem", allowed)
			if err != nil {
				t.Fatalf("ResolveForWrite(%q) error = %v", tt.input, err)
			}
			if p.Rel != tt.wantRel {
				t.Errorf("Rel = %q, want %q", p.Rel, tt.wantRel)
			}
			if p.Ext != tt.wantExt {
				t.Errorf("Ext = %q, want %q", p.Ext, tt.wantExt)
			}
			if !strings.HasSuffix(filepath.ToSlash(p.Abs), "/"+tt.wantRel) {
				t.Errorf("Abs = %q does not end in %q", p.Abs, tt.wantRel)
			}

			if err := EnsureParent(base, p); err != nil {
				t.Fatalf("EnsureParent(%s) error = %v", p.Rel, err)
			}
			if info, err := os.Stat(filepath.Dir(p.Abs)); err != nil || !info.IsDir() {
				t.Errorf("parent of %s was not created", p.Abs)
			}
		})
	}
}

func TestResolveForWriteCreatesNothing(t *testing.T) {
	base := t.TempDir()
	p, err := ResolveForWrite(base, "a/b/c", "schem", allowed)
	if err != nil {
		t.Fatalf("ResolveForWrite() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "a")); !os.IsNotExist(err) {
		t.Errorf("ResolveForWrite created directories: %v", err)
	}

	if err := EnsureParent(base, p); err != nil {
		t.Fatalf("EnsureParent() error = %v", err)
	}
	if info, err := os.Stat(filepath.Join(base, "a", "b")); err != nil || !info.IsDir() {
		t.Errorf("EnsureParent did not create a/b: %v", err)
	}
	if _, err := os.Stat(p.Abs); !os.IsNotExist(err) {
		t.Errorf("EnsureParent created the file itself: %v", err)
	}
}

func TestResolveForWriteRejectsDirectory(t *testing.T) {
	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "dir.schem"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := ResolveForWrite(base, "dir.schem", "schem", allowed); !errors.IsKind(err, errors.KindInvalidFilename) {
		t.Errorf("ResolveForWrite(dir.schem) error = %v, want invalid filename", err)
	}
}

func TestTraversalNeverResolves(t *testing.T) {
	base := filepath.Join(t.TempDir(), "data", "schematics")
	if err := os.MkdirAll(base, 0o755); err != nil {
		t.Fatal(err)
	}

	names := []string{"../../etc/passwd", "../x", "a/../../x", "/etc/passwd", `..\x`, "C:/x"}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			if _, err := ResolveForWrite(base, name, "schem", allowed); !errors.IsKind(err, errors.KindPathEscape) {
				t.Errorf("ResolveForWrite(%q) error = %v, want path escape", name, err)
			}
			if _, err := ResolveForRead(base, name, "schem", allowed); !errors.IsKind(err, errors.KindPathEscape) {
				t.Errorf("ResolveForRead(%q) error = %v, want path escape", name, err)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(base), "x.schem")); !os.IsNotExist(err) {
		t.Error("a traversal attempt created a file outside the root")
	}
}

func TestResolveForRead(t *testing.T) {
	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "sub", "dir.schem"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "sub", "tower.schem"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := ResolveForRead(base, "sub/tower", "schem", allowed)
	if err != nil {
		t.Fatalf("ResolveForRead() error = %v", err)
	}
	if p.Rel != "sub/tower.schem" {
		t.Errorf("Rel = %q", p.Rel)
	}

	for _, name := range []string{"sub/missing", "sub/dir", "nowhere/else.schem"} {
		if _, err := ResolveForRead(base, name, "schem", allowed); !errors.IsKind(err, errors.KindNotFound) {
			t.Errorf("ResolveForRead(%q) error = %v, want not found", name, err)
		}
	}

	if _, err := ResolveForRead(filepath.Join(base, "no-such-root"), "tower", "schem", allowed); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("missing root error = %v, want not found", err)
	}
}

func TestSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	outside := t.TempDir()
	base := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.schem"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(base, "link")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(outside, "gone.schem"), filepath.Join(base, "dangling.schem")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		fn   func() error
	}{
		{"read through dir link", func() error { _, err := ResolveForRead(base, "link/secret", "schem", allowed); return err }},
		{"write through dir link", func() error { _, err := ResolveForWrite(base, "link/new", "schem", allowed); return err }},
		{"write nested under dir link", func() error { _, err := ResolveForWrite(base, "link/a/b", "schem", allowed); return err }},
		{"write dangling file link", func() error { _, err := ResolveForWrite(base, "dangling", "schem", allowed); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.IsKind(err, errors.KindPathEscape) {
				t.Errorf("error = %v, want path escape", err)
			}
		})
	}
	if _, err := os.Stat(filepath.Join(outside, "a")); !os.IsNotExist(err) {
		t.Error("directories were created outside the root")
	}
}

func TestSymlinkedRootIsAllowed(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	target := t.TempDir()
	link := filepath.Join(t.TempDir(), "schematics")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}
	p, err := ResolveForWrite(link, "nested/inside", "schem", allowed)
	if err != nil {
		t.Fatalf("ResolveForWrite through a symlinked root error = %v", err)
	}
	if err := EnsureParent(link, p); err != nil {
		t.Errorf("EnsureParent through a symlinked root error = %v", err)
	}
}

func TestDirectoryCreateFailed(t *testing.T) {
	base := t.TempDir()
	if err := os.WriteFile(filepath.Join(base, "file"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := ResolveForWrite(base, "file/child/name", "schem", allowed)
	if err != nil {
		t.Fatalf("ResolveForWrite() error = %v", err)
	}
	if err := EnsureParent(base, p); !errors.IsKind(err, errors.KindDirectoryCreateFailed) {
		t.Errorf("EnsureParent() error = %v, want directory create failed", err)
	}

	if _, err := ResolveForRead(base, "file/child", "schem", allowed); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("read below a regular file error = %v, want not found", err)
	}
}
