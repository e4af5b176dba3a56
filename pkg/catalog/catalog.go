// Package catalog lists the schematic files stored under a folder.
package catalog

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"schemctl/pkg/cache"
	"schemctl/pkg/errors"
	"schemctl/pkg/format"
	"schemctl/pkg/logger"
)

// SortKey orders a listing.
type SortKey int

const (
	SortName SortKey = iota
	SortModTimeAscending
	SortModTimeDescending
)

func (k SortKey) String() string {
	switch k {
	case SortModTimeAscending:
		return "oldest"
	case SortModTimeDescending:
		return "newest"
	default:
		return "name"
	}
}

// ParseSortKey accepts name, oldest/asc or newest/desc.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "name":
		return SortName, nil
	case "oldest", "asc", "mtime-asc":
		return SortModTimeAscending, nil
	case "newest", "desc", "mtime-desc":
		return SortModTimeDescending, nil
	default:
		return SortName, fmt.Errorf("invalid sort key %q (expected name, oldest or newest)", s)
	}
}

// Entry is one listed file.
type Entry struct {
	// Path is relative to the listed folder and slash-separated.
	Path    string
	Format  *format.Descriptor
	ModTime time.Time
	Size    int64
}

// FormatName returns the detected format name or "Unknown".
func (e Entry) FormatName() string {
	return e.Format.String()
}

// DetectionCache remembers detections between listings. Rows are keyed by
// CacheKey.
type DetectionCache interface {
	GetDetection(path string, size int64, modTime time.Time) (string, bool, error)
	GetDetections() (map[string]cache.Detection, error)
	SetDetections([]cache.Detection) error
	DeleteDetection(path string) error
}

// CacheKey is the detection cache key of the file at rel under baseDir. It
// is the unresolved path, so a folder reached through a symlink keys its
// rows by the link.
func CacheKey(baseDir, rel string) string {
	return filepath.Join(baseDir, filepath.FromSlash(rel))
}

// Catalog lists and annotates schematic files.
type Catalog struct {
	registry *format.Registry
	cache    DetectionCache
}

// New returns a catalog detecting formats with registry. dc may be nil.
func New(registry *format.Registry, dc DetectionCache) *Catalog {
	return &Catalog{registry: registry, cache: dc}
}

// List walks baseDir recursively and returns its regular files ordered by
// key. Directories and other non-regular entries are never listed.
func (c *Catalog) List(baseDir string, key SortKey) ([]Entry, error) {
	info, err := os.Stat(baseDir)
	if err != nil || !info.IsDir() {
		return nil, errors.NotFound(filepath.Base(baseDir))
	}

	var entries []Entry
	err = filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == baseDir {
				return err
			}
			logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			return nil
		}
		entries = append(entries, Entry{
			Path:    filepath.ToSlash(rel),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "list "+baseDir)
	}

	c.detect(baseDir, entries)
	Sort(entries, key)
	return entries, nil
}

// Detect returns the format of the file at rel under baseDir, consulting the
// cache first. A nil descriptor means no format recognised the file.
func (c *Catalog) Detect(baseDir, rel string) (*format.Descriptor, error) {
	key := CacheKey(baseDir, rel)
	info, err := os.Stat(key)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		name, ok, err := c.cache.GetDetection(key, info.Size(), info.ModTime())
		if err != nil {
			logger.Warn().Err(err).Msg("detection cache unavailable")
		} else if ok {
			if name == "" {
				return nil, nil
			}
			if d, err := c.registry.Lookup(name); err == nil {
				return d, nil
			}
		}
	}

	d, err := c.registry.DetectFile(key)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		row := cache.Detection{Path: key, Size: info.Size(), ModTime: info.ModTime(), Format: detectedName(d)}
		if err := c.cache.SetDetections([]cache.Detection{row}); err != nil {
			logger.Warn().Err(err).Msg("failed to store detections")
		}
	}
	return d, nil
}

// Forget drops the cached detection of the file at rel under baseDir.
func (c *Catalog) Forget(baseDir, rel string) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.DeleteDetection(CacheKey(baseDir, rel))
}

func (c *Catalog) detect(baseDir string, entries []Entry) {
	var cached map[string]cache.Detection
	if c.cache != nil {
		var err error
		if cached, err = c.cache.GetDetections(); err != nil {
			logger.Warn().Err(err).Msg("detection cache unavailable")
		}
	}

	var fresh []cache.Detection
	for i := range entries {
		e := &entries[i]
		key := CacheKey(baseDir, e.Path)
		if hit, ok := cached[key]; ok && hit.Size == e.Size && hit.ModTime.Equal(e.ModTime) {
			if hit.Format != "" {
				e.Format, _ = c.registry.Lookup(hit.Format)
			}
			continue
		}

		d, err := c.registry.DetectFile(key)
		if err != nil {
			logger.Debug().Err(err).Str("path", e.Path).Msg("format detection failed")
			continue
		}
		e.Format = d
		fresh = append(fresh, cache.Detection{Path: key, Size: e.Size, ModTime: e.ModTime, Format: detectedName(d)})
	}

	if c.cache != nil && len(fresh) > 0 {
		if err := c.cache.SetDetections(fresh); err != nil {
			logger.Warn().Err(err).Msg("failed to store detections")
		}
	}
}

// detectedName is the name stored for d; undetected files store "".
func detectedName(d *format.Descriptor) string {
	if d == nil {
		return ""
	}
	return d.Name
}

// Sort orders entries in place. Name order ignores case and falls back to
// the exact name; ties in modification time keep traversal order.
func Sort(entries []Entry, key SortKey) {
	switch key {
	case SortModTimeAscending:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].ModTime.Before(entries[j].ModTime)
		})
	case SortModTimeDescending:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].ModTime.After(entries[j].ModTime)
		})
	default:
		sort.SliceStable(entries, func(i, j int) bool {
			a, b := strings.ToLower(entries[i].Path), strings.ToLower(entries[j].Path)
			if a != b {
				return a < b
			}
			return entries[i].Path < entries[j].Path
		})
	}
}
