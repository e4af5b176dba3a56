// Package blockdata packs palette indices as unsigned varints and converts
// between clipboards and the palette tables the formats store.
package blockdata

import (
	"encoding/binary"
	"fmt"
	"sort"

	"schemctl/pkg/clipboard"
)

// Pack encodes one unsigned varint per index.
func Pack(indices []uint32) []byte {
	out := make([]byte, 0, len(indices))
	for _, idx := range indices {
		out = binary.AppendUvarint(out, uint64(idx))
	}
	return out
}

// Unpack decodes exactly n varints from data. Every varint takes at least
// one byte, so n is checked against len(data) before anything is allocated.
func Unpack(data []byte, n int) ([]uint32, error) {
	if n < 0 || n > len(data) {
		return nil, fmt.Errorf("block data has %d bytes, too few for %d cells", len(data), n)
	}
	out := make([]uint32, 0, n)
	for len(out) < n {
		v, size := binary.Uvarint(data)
		if size <= 0 {
			return nil, fmt.Errorf("block data truncated after %d of %d cells", len(out), n)
		}
		if v > uint64(^uint32(0)) {
			return nil, fmt.Errorf("block data cell %d overflows", len(out))
		}
		out = append(out, uint32(v))
		data = data[size:]
	}
	if len(data) != 0 {
		return nil, fmt.Errorf("block data has %d trailing bytes", len(data))
	}
	return out, nil
}

// PaletteMap turns a palette slice into the state-to-index table formats
// store on disk.
func PaletteMap(palette []clipboard.BlockState) map[string]int32 {
	out := make(map[string]int32, len(palette))
	for i, state := range palette {
		out[state.String()] = int32(i)
	}
	return out
}

// PaletteSlice inverts PaletteMap. Indices must be dense and start at zero.
func PaletteSlice(table map[string]int32) ([]clipboard.BlockState, error) {
	type entry struct {
		key string
		idx int32
	}
	entries := make([]entry, 0, len(table))
	for k, v := range table {
		entries = append(entries, entry{k, v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })

	out := make([]clipboard.BlockState, len(entries))
	for i, e := range entries {
		if int(e.idx) != i {
			return nil, fmt.Errorf("palette index %d for %q is not dense", e.idx, e.key)
		}
		state, err := clipboard.ParseBlockState(e.key)
		if err != nil {
			return nil, fmt.Errorf("palette entry %d: %w", i, err)
		}
		out[i] = state
	}
	return out, nil
}
