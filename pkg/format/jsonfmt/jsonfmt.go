// Package jsonfmt implements a readable JSON clipboard format for debugging
// and interchange with scripts.
package jsonfmt

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"schemctl/pkg/clipboard"
	"schemctl/pkg/format"
	"schemctl/pkg/geom"

	"github.com/goccy/go-json"
)

// Tag is the value of the self-describing "format" field.
const Tag = "clipboard-json"

var errWritten = errors.New("jsonfmt: writer already holds a clipboard")

var Format = format.Descriptor{
	Name:       "json",
	Aliases:    []string{"json", Tag},
	Extensions: []string{"json"},
	Reader:     NewReader,
	Writer:     NewWriter,
	Sniff:      Sniff,
}

type document struct {
	Format  string              `json:"format"`
	Version int                 `json:"version"`
	Region  geom.Region         `json:"region"`
	Origin  geom.Vector3        `json:"origin"`
	World   clipboard.WorldData `json:"world"`
	Palette []string            `json:"palette"`
	Blocks  []uint32            `json:"blocks"`
}

func Sniff(header []byte) bool {
	trimmed := bytes.TrimSpace(header)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return bytes.Contains(header, []byte(`"format": "`+Tag+`"`)) ||
		bytes.Contains(header, []byte(`"format":"`+Tag+`"`))
}

type reader struct {
	r io.Reader
}

func NewReader(r io.Reader) (format.ClipboardReader, error) {
	return &reader{r: r}, nil
}

func (rd *reader) Read() (*clipboard.Clipboard, error) {
	var doc document
	if err := json.NewDecoder(rd.r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if doc.Format != Tag {
		return nil, fmt.Errorf("format field is %q, want %q", doc.Format, Tag)
	}
	r := doc.Region
	if r.Min.X > r.Max.X || r.Min.Y > r.Max.Y || r.Min.Z > r.Max.Z {
		return nil, fmt.Errorf("invalid region %s", r)
	}

	palette := make([]clipboard.BlockState, len(doc.Palette))
	for i, s := range doc.Palette {
		state, err := clipboard.ParseBlockState(s)
		if err != nil {
			return nil, fmt.Errorf("palette entry %d: %w", i, err)
		}
		palette[i] = state
	}
	return clipboard.FromPalette(r, doc.Origin, palette, doc.Blocks)
}

type writer struct {
	w       io.Writer
	written bool
}

func NewWriter(w io.Writer) (format.ClipboardWriter, error) {
	return &writer{w: w}, nil
}

func (wr *writer) Write(c *clipboard.Clipboard, world clipboard.WorldData) error {
	if wr.written {
		return errWritten
	}
	wr.written = true

	palette, indices := c.PaletteData()
	names := make([]string, len(palette))
	for i, state := range palette {
		names[i] = state.String()
	}
	data, err := json.MarshalIndent(document{
		Format:  Tag,
		Version: 1,
		Region:  c.Region(),
		Origin:  c.Origin(),
		World:   world,
		Palette: names,
		Blocks:  indices,
	}, "", "  ")
	if err != nil {
		return err
	}
	_, err = wr.w.Write(data)
	return err
}

func (wr *writer) Close() error { return nil }
