// Package sponge implements the .schem format: a gzip stream holding the
// magic "SPNG" followed by one deterministic CBOR document.
package sponge

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"schemctl/pkg/clipboard"
	"schemctl/pkg/codec"
	"schemctl/pkg/format"
	"schemctl/pkg/format/internal/blockdata"
	"schemctl/pkg/geom"

	"github.com/klauspost/compress/gzip"
)

const (
	Magic   = "SPNG"
	Version = 3
)

var errWritten = errors.New("sponge: writer already holds a clipboard")

// Format describes the sponge codec.
var Format = format.Descriptor{
	Name:       "sponge",
	Aliases:    []string{"sponge", "schem", "spongeschematic"},
	Extensions: []string{"schem"},
	Reader:     NewReader,
	Writer:     NewWriter,
	Sniff:      Sniff,
}

type document struct {
	Version     int              `cbor:"version"`
	DataVersion int              `cbor:"data_version"`
	Platform    string           `cbor:"platform,omitempty"`
	Width       int              `cbor:"width"`
	Height      int              `cbor:"height"`
	Length      int              `cbor:"length"`
	Offset      geom.Vector3     `cbor:"offset"`
	WEOffset    geom.Vector3     `cbor:"we_offset"`
	Palette     map[string]int32 `cbor:"palette"`
	BlockData   []byte           `cbor:"block_data"`
}

// Sniff accepts gzip streams whose inflated content starts with Magic.
func Sniff(header []byte) bool {
	return bytes.Equal(format.GunzipPrefix(header, len(Magic)), []byte(Magic))
}

type reader struct {
	r io.Reader
}

func NewReader(r io.Reader) (format.ClipboardReader, error) {
	return &reader{r: r}, nil
}

func (rd *reader) Read() (*clipboard.Clipboard, error) {
	zr, err := gzip.NewReader(rd.r)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer zr.Close()

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(zr, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != Magic {
		return nil, fmt.Errorf("bad magic %q", magic)
	}

	var doc document
	if err := codec.NewDecoder(zr).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	// drain so a damaged gzip trailer is reported
	if _, err := io.Copy(io.Discard, zr); err != nil {
		return nil, fmt.Errorf("read trailer: %w", err)
	}
	return doc.clipboard()
}

func (doc *document) clipboard() (*clipboard.Clipboard, error) {
	if doc.Version < 1 || doc.Version > Version {
		return nil, fmt.Errorf("unsupported version %d", doc.Version)
	}
	if doc.Width <= 0 || doc.Height <= 0 || doc.Length <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%dx%d", doc.Width, doc.Height, doc.Length)
	}
	region := geom.RegionOfSize(doc.Offset, geom.V(doc.Width, doc.Height, doc.Length))

	palette, err := blockdata.PaletteSlice(doc.Palette)
	if err != nil {
		return nil, err
	}
	vol, err := clipboard.CheckRegion(region)
	if err != nil {
		return nil, err
	}
	indices, err := blockdata.Unpack(doc.BlockData, vol)
	if err != nil {
		return nil, err
	}
	return clipboard.FromPalette(region, doc.Offset.Add(doc.WEOffset), palette, indices)
}

type writer struct {
	zw      *gzip.Writer
	written bool
}

func NewWriter(w io.Writer) (format.ClipboardWriter, error) {
	return &writer{zw: gzip.NewWriter(w)}, nil
}

func (wr *writer) Write(c *clipboard.Clipboard, world clipboard.WorldData) error {
	if wr.written {
		return errWritten
	}
	wr.written = true

	region := c.Region()
	dims := region.Dimensions()
	palette, indices := c.PaletteData()
	doc := document{
		Version:     Version,
		DataVersion: world.DataVersion,
		Platform:    world.Platform,
		Width:       dims.X,
		Height:      dims.Y,
		Length:      dims.Z,
		Offset:      region.Min,
		WEOffset:    c.Origin().Sub(region.Min),
		Palette:     blockdata.PaletteMap(palette),
		BlockData:   blockdata.Pack(indices),
	}

	if _, err := io.WriteString(wr.zw, Magic); err != nil {
		return err
	}
	return codec.NewEncoder(wr.zw).Encode(doc)
}

func (wr *writer) Close() error {
	return wr.zw.Close()
}
