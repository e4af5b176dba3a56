// Package builtin assembles the default format registry.
package builtin

import (
	"sync"

	"schemctl/pkg/format"
	"schemctl/pkg/format/bundle"
	"schemctl/pkg/format/jsonfmt"
	"schemctl/pkg/format/mcedit"
	"schemctl/pkg/format/sponge"
)

// DefaultFormat is the alias used when a save names no format.
const DefaultFormat = "sponge"

// Registry returns the process-wide registry of built-in formats. It is
// constructed on first use and never changes afterwards.
var Registry = sync.OnceValue(func() *format.Registry {
	return format.MustNewRegistry(descriptors(bundle.Format)...)
})

// Options tune the built-in formats.
type Options struct {
	// BundleCompression names the bundle payload compression: none, lz4
	// (default) or zstd.
	BundleCompression string
}

// NewRegistry builds a registry of the built-in formats tuned by opts. The
// registration order matches Registry.
func NewRegistry(opts Options) (*format.Registry, error) {
	c, err := bundle.ParseCompression(opts.BundleCompression)
	if err != nil {
		return nil, err
	}
	return format.NewRegistry(descriptors(bundle.WithCompression(c))...)
}

func descriptors(b format.Descriptor) []format.Descriptor {
	return []format.Descriptor{
		sponge.Format,
		mcedit.Format,
		b,
		jsonfmt.Format,
	}
}
