// Package sandbox turns untrusted schematic names into paths confined to a
// root directory.
package sandbox

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"schemctl/pkg/errors"
)

// Path is a resolved location under the root.
type Path struct {
	// Abs is the absolute path with symlinks in existing components resolved.
	Abs string
	// Rel is the slash-separated path relative to the root.
	Rel string
	// Ext is the lower-case extension without the dot.
	Ext string
}

// ResolveForRead resolves name under base and requires it to be an existing
// regular file. A name without an allowed extension gets defaultExt.
func ResolveForRead(base, name, defaultExt string, allowed []string) (Path, error) {
	p, err := resolve(base, name, defaultExt, allowed)
	if err != nil {
		return Path{}, err
	}
	info, err := os.Stat(p.Abs)
	if err != nil {
		if isNotExist(err) {
			return Path{}, errors.NotFound(p.Rel)
		}
		return Path{}, errors.Wrap(err, "stat "+p.Rel)
	}
	if info.IsDir() {
		return Path{}, errors.NotFound(p.Rel)
	}
	return p, nil
}

// ResolveForWrite resolves name under base for creation. The file itself
// may or may not exist. Nothing is created; see EnsureParent.
func ResolveForWrite(base, name, defaultExt string, allowed []string) (Path, error) {
	p, err := resolve(base, name, defaultExt, allowed)
	if err != nil {
		return Path{}, err
	}
	if info, err := os.Stat(p.Abs); err == nil && info.IsDir() {
		return Path{}, errors.InvalidFilename(name, "names a directory")
	}
	return p, nil
}

// EnsureParent creates the missing parent directories of p, a path returned
// by ResolveForWrite for base, and checks again that they lie under base.
func EnsureParent(base string, p Path) error {
	dir := filepath.Dir(p.Abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.DirectoryCreateFailed(path.Dir(p.Rel), err)
	}

	// a symlink may have appeared while the directories were created
	root, err := realPath(base)
	if err != nil {
		return errors.Wrap(err, "resolve schematic folder")
	}
	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return errors.DirectoryCreateFailed(path.Dir(p.Rel), err)
	}
	if !within(root, realDir) {
		return errors.PathEscape(p.Rel)
	}
	return nil
}

func resolve(base, name, defaultExt string, allowed []string) (Path, error) {
	clean, err := Clean(name)
	if err != nil {
		return Path{}, err
	}
	clean, ext := withExtension(clean, defaultExt, allowed)

	root, err := realPath(base)
	if err != nil {
		return Path{}, errors.Wrap(err, "resolve schematic folder")
	}
	target := filepath.Join(root, filepath.FromSlash(clean))
	if !within(root, target) {
		return Path{}, errors.PathEscape(name)
	}

	resolved, err := realPath(target)
	if err != nil {
		if isNotExist(err) {
			// dangling symlink
			return Path{}, errors.PathEscape(name)
		}
		return Path{}, errors.Wrap(err, "resolve "+clean)
	}
	if !within(root, resolved) {
		return Path{}, errors.PathEscape(name)
	}
	return Path{Abs: resolved, Rel: clean, Ext: ext}, nil
}

// Clean validates name and returns it normalised to a relative,
// slash-separated path. Backslashes count as separators.
func Clean(name string) (string, error) {
	if name == "" {
		return "", errors.InvalidFilename(name, "name is empty")
	}
	slashed := strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(slashed, "/") || hasDriveLetter(slashed) || filepath.IsAbs(name) {
		return "", errors.PathEscape(name)
	}
	for _, r := range name {
		if !safeRune(r) {
			if r == 0 {
				return "", errors.InvalidFilename(name, "contains a NUL byte")
			}
			return "", errors.InvalidFilename(name, "contains the character "+strconv.QuoteRune(r))
		}
	}

	clean := path.Clean(slashed)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.PathEscape(name)
	}
	if clean == "." {
		return "", errors.InvalidFilename(name, "names the schematic folder itself")
	}
	return clean, nil
}

func hasDriveLetter(s string) bool {
	if len(s) < 2 || s[1] != ':' {
		return false
	}
	c := s[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func safeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune(`_- ./\'$@~!%^*()[]+{},?`, r)
}

func withExtension(clean, defaultExt string, allowed []string) (string, string) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(clean), "."))
	for _, a := range allowed {
		if ext != "" && ext == strings.ToLower(strings.TrimPrefix(a, ".")) {
			return clean, ext
		}
	}
	defaultExt = strings.ToLower(strings.TrimPrefix(defaultExt, "."))
	if defaultExt == "" {
		return clean, ext
	}
	return clean + "." + defaultExt, defaultExt
}

// within reports whether target equals root or lies beneath it.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// realPath resolves symlinks in the deepest existing ancestor of p and
// re-appends the components that do not exist yet.
func realPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	existing := abs
	var tail []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		} else if !isNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		tail = append(tail, filepath.Base(existing))
		existing = parent
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	for i := len(tail) - 1; i >= 0; i-- {
		resolved = filepath.Join(resolved, tail[i])
	}
	return resolved, nil
}

// isNotExist also treats a regular file used as a directory as missing.
func isNotExist(err error) bool {
	return stderrors.Is(err, fs.ErrNotExist) || stderrors.Is(err, syscall.ENOTDIR)
}
