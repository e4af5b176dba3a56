// Package format defines the schematic format registry: named encodings,
// their aliases and extensions, and how to recognise them from file content.
package format

import (
	"fmt"
	"io"
	"os"
	"strings"

	"schemctl/pkg/clipboard"
	"schemctl/pkg/errors"
)

// SniffLength is the number of leading bytes DetectFile hands to sniffers.
const SniffLength = 1024

// ClipboardReader decodes one clipboard from the stream it was created on.
type ClipboardReader interface {
	Read() (*clipboard.Clipboard, error)
}

// ClipboardWriter encodes clipboards to the stream it was created on. Close
// flushes format framing but does not close the underlying stream.
type ClipboardWriter interface {
	Write(c *clipboard.Clipboard, world clipboard.WorldData) error
	Close() error
}

type ReaderFactory func(r io.Reader) (ClipboardReader, error)

type WriterFactory func(w io.Writer) (ClipboardWriter, error)

// Descriptor describes one schematic format.
type Descriptor struct {
	Name string
	// Aliases are matched case-insensitively by Registry.Lookup.
	Aliases []string
	// Extensions without the leading dot; the first is used for new files.
	Extensions []string
	Reader     ReaderFactory
	Writer     WriterFactory
	// Sniff reports whether header, the first bytes of a file, looks like
	// this format. header may be shorter than SniffLength.
	Sniff func(header []byte) bool
}

// Extension returns the primary extension without the leading dot.
func (d *Descriptor) Extension() string {
	if d == nil || len(d.Extensions) == 0 {
		return ""
	}
	return d.Extensions[0]
}

func (d *Descriptor) String() string {
	if d == nil {
		return "Unknown"
	}
	return d.Name
}

// Registry is an immutable set of formats. It is safe for concurrent use.
type Registry struct {
	formats []Descriptor
	aliases map[string]int
}

// NewRegistry validates descs and returns a registry preserving their order.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{
		formats: make([]Descriptor, 0, len(descs)),
		aliases: make(map[string]int),
	}
	for i, d := range descs {
		if strings.TrimSpace(d.Name) == "" {
			return nil, fmt.Errorf("format %d has no name", i)
		}
		if len(d.Aliases) == 0 {
			return nil, fmt.Errorf("format %s has no aliases", d.Name)
		}
		if d.Reader == nil || d.Writer == nil {
			return nil, fmt.Errorf("format %s needs both a reader and a writer", d.Name)
		}
		for _, alias := range d.Aliases {
			key := strings.ToLower(strings.TrimSpace(alias))
			if key == "" {
				return nil, fmt.Errorf("format %s has an empty alias", d.Name)
			}
			if other, ok := r.aliases[key]; ok {
				return nil, fmt.Errorf("alias %q is claimed by both %s and %s", alias, r.formats[other].Name, d.Name)
			}
			r.aliases[key] = i
		}
		d.Aliases = append([]string(nil), d.Aliases...)
		d.Extensions = normalizeExtensions(d.Extensions)
		r.formats = append(r.formats, d)
	}
	return r, nil
}

// MustNewRegistry is NewRegistry for static format tables.
func MustNewRegistry(descs ...Descriptor) *Registry {
	r, err := NewRegistry(descs...)
	if err != nil {
		panic(err)
	}
	return r
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

// Lookup finds a format by alias, ignoring case.
func (r *Registry) Lookup(alias string) (*Descriptor, error) {
	if i, ok := r.aliases[strings.ToLower(strings.TrimSpace(alias))]; ok {
		return &r.formats[i], nil
	}
	return nil, errors.FormatNotFound(alias)
}

// Detect returns the first format, in registration order, whose sniffer
// accepts header, or nil.
func (r *Registry) Detect(header []byte) *Descriptor {
	for i := range r.formats {
		if sniff := r.formats[i].Sniff; sniff != nil && sniff(header) {
			return &r.formats[i]
		}
	}
	return nil
}

// DetectFile sniffs the head of the file at path. An unrecognised file yields
// a nil descriptor and no error.
func (r *Registry) DetectFile(path string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, SniffLength)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return r.Detect(header[:n]), nil
}

// ByExtension returns the first format listing ext, with or without the dot.
func (r *Registry) ByExtension(ext string) *Descriptor {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return nil
	}
	for i := range r.formats {
		for _, e := range r.formats[i].Extensions {
			if e == ext {
				return &r.formats[i]
			}
		}
	}
	return nil
}

// All returns the formats in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.formats))
	copy(out, r.formats)
	return out
}

// Aliases returns every registered alias in registration order.
func (r *Registry) Aliases() []string {
	var out []string
	for _, d := range r.formats {
		out = append(out, d.Aliases...)
	}
	return out
}

// Extensions returns the union of all extensions in registration order.
func (r *Registry) Extensions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range r.formats {
		for _, ext := range d.Extensions {
			if !seen[ext] {
				seen[ext] = true
				out = append(out, ext)
			}
		}
	}
	return out
}
