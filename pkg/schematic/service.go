// Package schematic loads, saves, deletes and lists clipboard schematics
// under a confined folder.
package schematic

import (
	"context"
	"os"
	"path"
	"strings"
	"time"

	"schemctl/pkg/catalog"
	"schemctl/pkg/clipboard"
	"schemctl/pkg/errors"
	"schemctl/pkg/format"
	"schemctl/pkg/logger"
	"schemctl/pkg/metrics"
	"schemctl/pkg/sandbox"

	"github.com/rs/zerolog"
)

// Options configure a Service. Zero values select defaults.
type Options struct {
	Logger  *zerolog.Logger
	Metrics metrics.Recorder
	// Cache, when set, remembers format detections between listings.
	Cache catalog.DetectionCache
	// DefaultFormat is the alias used when none is given. It must resolve.
	DefaultFormat string
	// World is attached to loaded clipboards.
	World clipboard.WorldData
}

// Target is where a save went.
type Target struct {
	Path   sandbox.Path
	Format *format.Descriptor
}

// Service runs schematic operations. Apart from the per-path lock table it
// holds no state between calls and is safe for concurrent use.
type Service struct {
	registry      *format.Registry
	defaultFormat *format.Descriptor
	catalog       *catalog.Catalog
	log           zerolog.Logger
	metrics       metrics.Recorder
	world         clipboard.WorldData
	locks         *pathLocks
}

// NewService binds registry to the given options.
func NewService(registry *format.Registry, opts Options) (*Service, error) {
	if registry == nil {
		return nil, errors.ValidationError("a format registry is required")
	}
	name := opts.DefaultFormat
	if name == "" {
		all := registry.All()
		if len(all) == 0 {
			return nil, errors.ValidationError("the format registry is empty")
		}
		name = all[0].Name
	}
	def, err := registry.Lookup(name)
	if err != nil {
		return nil, errors.Wrap(err, "default format")
	}

	s := &Service{
		registry:      registry,
		defaultFormat: def,
		catalog:       catalog.New(registry, opts.Cache),
		log:           logger.GetLogger(),
		metrics:       opts.Metrics,
		world:         opts.World,
		locks:         newPathLocks(),
	}
	if opts.Logger != nil {
		s.log = *opts.Logger
	}
	if s.metrics == nil {
		s.metrics = metrics.Noop{}
	}
	if s.world == (clipboard.WorldData{}) {
		s.world = clipboard.DefaultWorld
	}
	return s, nil
}

// Registry returns the registry the service was built with.
func (s *Service) Registry() *format.Registry { return s.registry }

// DefaultFormat returns the format used when none is named.
func (s *Service) DefaultFormat() *format.Descriptor { return s.defaultFormat }

// Formats lists the registered formats in registration order.
func (s *Service) Formats() []format.Descriptor {
	return s.registry.All()
}

// Load reads filename from baseDir. An empty formatName selects the format
// by extension and then by content.
func (s *Service) Load(ctx context.Context, baseDir, formatName, filename string) (h *clipboard.Holder, err error) {
	done := s.begin(ctx, "load", filename, formatName)
	defer func() { done(err) }()

	if err := checkContext(ctx, "load"); err != nil {
		return nil, err
	}

	var desc *format.Descriptor
	if formatName != "" {
		if desc, err = s.registry.Lookup(formatName); err != nil {
			return nil, err
		}
	}

	p, err := s.resolveExisting(baseDir, filename, desc)
	if err != nil {
		return nil, err
	}

	if desc == nil {
		if desc = s.registry.ByExtension(p.Ext); desc == nil {
			desc, err = s.catalog.Detect(baseDir, p.Rel)
			if err != nil {
				return nil, errors.DecodeError(p.Rel, "unknown", err)
			}
			if desc == nil {
				return nil, errors.UnknownFormat(p.Rel)
			}
		}
	}

	unlock := s.locks.lock(p.Abs)
	defer unlock()

	c, err := read(p.Abs, desc)
	if err != nil {
		return nil, errors.DecodeError(p.Rel, desc.Name, err)
	}

	h = clipboard.NewHolder(c)
	h.World = s.world
	return h, nil
}

func read(abs string, desc *format.Descriptor) (*clipboard.Clipboard, error) {
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := desc.Reader(f)
	if err != nil {
		return nil, err
	}
	return r.Read()
}

// Save bakes the holder's pending transform and writes the result to
// filename under baseDir. Parent directories are created only once the
// clipboard has baked. A failed encode may leave a partial file behind.
func (s *Service) Save(ctx context.Context, baseDir, formatName, filename string, h *clipboard.Holder) (t Target, err error) {
	done := s.begin(ctx, "save", filename, formatName)
	defer func() { done(err) }()

	if err := checkContext(ctx, "save"); err != nil {
		return Target{}, err
	}
	if h == nil || h.Clipboard == nil {
		return Target{}, errors.EmptyClipboard()
	}

	desc := s.defaultFormat
	if formatName != "" {
		if desc, err = s.registry.Lookup(formatName); err != nil {
			return Target{}, err
		}
	}

	p, err := sandbox.ResolveForWrite(baseDir, filename, desc.Extension(), desc.Extensions)
	if err != nil {
		return Target{}, err
	}

	baked, err := clipboard.Bake(h.Clipboard, h.Transform)
	if err != nil {
		return Target{}, err
	}
	if err := sandbox.EnsureParent(baseDir, p); err != nil {
		return Target{}, err
	}
	world := h.World
	if world == (clipboard.WorldData{}) {
		world = s.world
	}

	unlock := s.locks.lock(p.Abs)
	defer unlock()

	if err := write(p.Abs, desc, baked, world); err != nil {
		return Target{}, errors.EncodeError(p.Rel, desc.Name, err)
	}
	return Target{Path: p, Format: desc}, nil
}

func write(abs string, desc *format.Descriptor, c *clipboard.Clipboard, world clipboard.WorldData) (err error) {
	f, err := os.Create(abs)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w, err := desc.Writer(f)
	if err != nil {
		return err
	}
	if err := w.Write(c, world); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Delete removes filename from baseDir.
func (s *Service) Delete(ctx context.Context, baseDir, filename string) (p sandbox.Path, err error) {
	done := s.begin(ctx, "delete", filename, "")
	defer func() { done(err) }()

	if err := checkContext(ctx, "delete"); err != nil {
		return sandbox.Path{}, err
	}

	p, err = s.resolveExisting(baseDir, filename, nil)
	if err != nil {
		return sandbox.Path{}, err
	}

	unlock := s.locks.lock(p.Abs)
	defer unlock()

	if err := os.Remove(p.Abs); err != nil {
		if os.IsNotExist(err) {
			return sandbox.Path{}, errors.NotFound(filename)
		}
		return sandbox.Path{}, errors.DeleteFailed(p.Rel, err)
	}

	if err := s.catalog.Forget(baseDir, p.Rel); err != nil {
		s.log.Debug().Err(err).Str("path", p.Rel).Msg("failed to drop cached detection")
	}
	return p, nil
}

// List returns the files under baseDir ordered by key.
func (s *Service) List(ctx context.Context, baseDir string, key catalog.SortKey) (entries []catalog.Entry, err error) {
	done := s.begin(ctx, "list", baseDir, "")
	defer func() { done(err) }()

	if err := checkContext(ctx, "list"); err != nil {
		return nil, err
	}
	return s.catalog.List(baseDir, key)
}

// Resolve returns the existing file filename names under baseDir using the
// same extension fallback as Load and Delete. Nothing is opened.
func (s *Service) Resolve(baseDir, filename string) (sandbox.Path, error) {
	return s.resolveExisting(baseDir, filename, nil)
}

// resolveExisting resolves an existing file. With desc set, names without a
// known extension get desc's extension. Without it the default format's
// extension is tried first, then every other registered extension and
// finally the name as given. A missing file is reported under filename as
// typed, not under any of the candidates tried.
func (s *Service) resolveExisting(baseDir, filename string, desc *format.Descriptor) (sandbox.Path, error) {
	p, err := s.findExisting(baseDir, filename, desc)
	if errors.IsKind(err, errors.KindNotFound) {
		return sandbox.Path{}, errors.NotFound(filename)
	}
	return p, err
}

func (s *Service) findExisting(baseDir, filename string, desc *format.Descriptor) (sandbox.Path, error) {
	allowed := s.registry.Extensions()
	if desc != nil {
		return sandbox.ResolveForRead(baseDir, filename, desc.Extension(), allowed)
	}

	p, err := sandbox.ResolveForRead(baseDir, filename, s.defaultFormat.Extension(), allowed)
	if err == nil || !errors.IsKind(err, errors.KindNotFound) || hasExtension(filename, allowed) {
		return p, err
	}
	for _, ext := range allowed {
		if ext == s.defaultFormat.Extension() {
			continue
		}
		if alt, altErr := sandbox.ResolveForRead(baseDir, filename, ext, allowed); altErr == nil {
			return alt, nil
		}
	}
	// a foreign extension, e.g. "castle.dat", is left to content sniffing
	if path.Ext(filename) != "" {
		if alt, altErr := sandbox.ResolveForRead(baseDir, filename, "", allowed); altErr == nil {
			return alt, nil
		}
	}
	return p, err
}

func hasExtension(filename string, allowed []string) bool {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(strings.ReplaceAll(filename, `\`, "/")), "."))
	for _, a := range allowed {
		if ext != "" && ext == a {
			return true
		}
	}
	return false
}

func checkContext(ctx context.Context, operation string) error {
	if ctx == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		e := errors.CancelledError(operation)
		e.Underlying = err
		return e
	}
	return nil
}

// begin logs the start of an operation and returns the function that logs
// and records its outcome.
func (s *Service) begin(ctx context.Context, operation, subject, formatName string) func(error) {
	start := time.Now()
	event := s.log.Debug().Str("operation", operation).Str("subject", subject)
	if formatName != "" {
		event = event.Str("format", formatName)
	}
	event.Msg("schematic operation started")

	return func(err error) {
		elapsed := time.Since(start)
		s.metrics.Observe(ctx, operation, err == nil, elapsed)
		if err == nil {
			s.log.Info().
				Str("operation", operation).
				Str("subject", subject).
				Dur("elapsed", elapsed).
				Msg("schematic operation succeeded")
			return
		}
		event := s.log.Warn().
			Str("operation", operation).
			Str("subject", subject).
			Str("kind", errors.KindOf(err).String()).
			Dur("elapsed", elapsed)
		var cause error = err
		if e, ok := err.(*errors.Error); ok && e.Underlying != nil {
			cause = e.Underlying
		}
		event.AnErr("cause", cause).Msg("schematic operation failed")
	}
}
