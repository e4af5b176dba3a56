// Package mcedit implements the legacy .schematic format: a gzip-compressed
// NBT compound named "Schematic" with one palette byte per block.
package mcedit

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"schemctl/pkg/clipboard"
	"schemctl/pkg/format"
	"schemctl/pkg/geom"

	"github.com/Tnze/go-mc/nbt"
	"github.com/klauspost/compress/gzip"
)

const (
	RootName = "Schematic"
	// MaxPalette is the most distinct block states a byte array can index.
	MaxPalette = 256
)

var (
	ErrTooManyStates = fmt.Errorf("mcedit: more than %d distinct block states", MaxPalette)
	ErrTooLarge      = fmt.Errorf("mcedit: dimensions exceed %d", math.MaxInt16)

	errWritten = errors.New("mcedit: writer already holds a clipboard")
)

var Format = format.Descriptor{
	Name:       "mcedit",
	Aliases:    []string{"mcedit", "mce", "schematic"},
	Extensions: []string{"schematic"},
	Reader:     NewReader,
	Writer:     NewWriter,
	Sniff:      Sniff,
}

// Sniff accepts gzip streams whose inflated root compound is named Schematic.
func Sniff(header []byte) bool {
	name, ok := rootName(format.GunzipPrefix(header, 3+len(RootName)))
	return ok && name == RootName
}

// rootName reads the name of an NBT root compound from the first bytes of a
// document: the compound tag, a big-endian length and the name itself.
func rootName(b []byte) (string, bool) {
	if len(b) < 3 || b[0] != tagCompound {
		return "", false
	}
	n := int(binary.BigEndian.Uint16(b[1:3]))
	if len(b) < 3+n {
		return "", false
	}
	return string(b[3 : 3+n]), true
}

const tagCompound = 0x0a

// maxDocument bounds the inflated NBT document: one byte per block plus room
// for the mapping and metadata.
const maxDocument = clipboard.MaxVolume + 16<<20

// schematic is the root compound. Only the fields below are read; anything
// else in the document is ignored.
type schematic struct {
	Width             int16            `nbt:"Width"`
	Height            int16            `nbt:"Height"`
	Length            int16            `nbt:"Length"`
	Materials         string           `nbt:"Materials"`
	Blocks            []byte           `nbt:"Blocks"`
	SchematicaMapping map[string]int16 `nbt:"SchematicaMapping"`
	WEOriginX         int32            `nbt:"WEOriginX"`
	WEOriginY         int32            `nbt:"WEOriginY"`
	WEOriginZ         int32            `nbt:"WEOriginZ"`
	WEOffsetX         int32            `nbt:"WEOffsetX"`
	WEOffsetY         int32            `nbt:"WEOffsetY"`
	WEOffsetZ         int32            `nbt:"WEOffsetZ"`
	DataVersion       int32            `nbt:"DataVersion"`
	Platform          string           `nbt:"Platform,omitempty"`
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

	doc, err := io.ReadAll(io.LimitReader(zr, maxDocument+1))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if len(doc) > maxDocument {
		return nil, fmt.Errorf("document exceeds %d bytes", maxDocument)
	}

	var s schematic
	name, err := nbt.NewDecoder(bytes.NewReader(doc)).Decode(&s)
	if err != nil {
		return nil, fmt.Errorf("decode nbt: %w", err)
	}
	if name != RootName {
		return nil, fmt.Errorf("root compound is %q, want %q", name, RootName)
	}
	return s.clipboard()
}

func (s *schematic) clipboard() (*clipboard.Clipboard, error) {
	dims := [3]int16{s.Width, s.Height, s.Length}
	for i, key := range []string{"Width", "Height", "Length"} {
		if dims[i] <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %d", key, dims[i])
		}
	}

	start := geom.V(int(s.WEOriginX), int(s.WEOriginY), int(s.WEOriginZ))
	region := geom.RegionOfSize(start, geom.V(int(s.Width), int(s.Height), int(s.Length)))

	vol, err := clipboard.CheckRegion(region)
	if err != nil {
		return nil, err
	}
	if len(s.Blocks) != vol {
		return nil, fmt.Errorf("Blocks has %d entries, region %s needs %d", len(s.Blocks), region, vol)
	}
	if len(s.SchematicaMapping) == 0 {
		return nil, errors.New("missing SchematicaMapping")
	}

	palette := make([]clipboard.BlockState, len(s.SchematicaMapping))
	seen := make([]bool, len(s.SchematicaMapping))
	for key, i := range s.SchematicaMapping {
		idx := int(i)
		if idx < 0 || idx >= len(palette) || seen[idx] {
			return nil, fmt.Errorf("palette index %d for %q is not dense", idx, key)
		}
		state, err := clipboard.ParseBlockState(key)
		if err != nil {
			return nil, err
		}
		palette[idx], seen[idx] = state, true
	}

	indices := make([]uint32, len(s.Blocks))
	for i, b := range s.Blocks {
		indices[i] = uint32(b)
	}
	offset := geom.V(int(s.WEOffsetX), int(s.WEOffsetY), int(s.WEOffsetZ))
	return clipboard.FromPalette(region, start.Sub(offset), palette, indices)
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

	s, err := newSchematic(c, world)
	if err != nil {
		return err
	}
	return nbt.NewEncoder(wr.zw).Encode(*s, RootName)
}

func newSchematic(c *clipboard.Clipboard, world clipboard.WorldData) (*schematic, error) {
	region := c.Region()
	dims := region.Dimensions()
	if dims.X > math.MaxInt16 || dims.Y > math.MaxInt16 || dims.Z > math.MaxInt16 {
		return nil, ErrTooLarge
	}

	palette, indices := c.PaletteData()
	if len(palette) > MaxPalette {
		return nil, fmt.Errorf("%w: clipboard has %d", ErrTooManyStates, len(palette))
	}
	mapping := make(map[string]int16, len(palette))
	for i, state := range palette {
		mapping[state.String()] = int16(i)
	}
	blocks := make([]byte, len(indices))
	for i, idx := range indices {
		blocks[i] = byte(idx)
	}

	offset := region.Min.Sub(c.Origin())
	return &schematic{
		Width:             int16(dims.X),
		Height:            int16(dims.Y),
		Length:            int16(dims.Z),
		Materials:         "Alpha",
		Blocks:            blocks,
		SchematicaMapping: mapping,
		WEOriginX:         int32(region.Min.X),
		WEOriginY:         int32(region.Min.Y),
		WEOriginZ:         int32(region.Min.Z),
		WEOffsetX:         int32(offset.X),
		WEOffsetY:         int32(offset.Y),
		WEOffsetZ:         int32(offset.Z),
		DataVersion:       int32(world.DataVersion),
		Platform:          world.Platform,
	}, nil
}

func (wr *writer) Close() error {
	return wr.zw.Close()
}
