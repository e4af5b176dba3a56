// Package clipboard holds the in-memory block region a session copies,
// transforms, saves and loads.
package clipboard

import (
	"fmt"

	"schemctl/pkg/geom"
)

// Clipboard is a palette-indexed box of block states with an origin point.
// Cells are stored x-fastest, then z, then y.
type Clipboard struct {
	region  geom.Region
	origin  geom.Vector3
	palette []BlockState
	keys    map[string]uint32
	data    []uint32
}

// MaxVolume is the largest number of cells a decoded clipboard may hold.
const MaxVolume = 1 << 26

// CheckRegion returns the volume of region, or an error when the region is
// inverted, overflows or exceeds MaxVolume.
func CheckRegion(region geom.Region) (int, error) {
	vol, ok := region.CheckedVolume()
	if !ok {
		return 0, fmt.Errorf("region %s is inverted or too large", region)
	}
	if vol > MaxVolume {
		return 0, fmt.Errorf("region %s has %d cells, the limit is %d", region, vol, MaxVolume)
	}
	return vol, nil
}

// New returns an air-filled clipboard covering region, with the origin at the
// region minimum.
func New(region geom.Region) *Clipboard {
	region = geom.NewRegion(region.Min, region.Max)
	air := Air()
	return &Clipboard{
		region:  region,
		origin:  region.Min,
		palette: []BlockState{air},
		keys:    map[string]uint32{air.String(): 0},
		data:    make([]uint32, region.Volume()),
	}
}

// FromPalette builds a clipboard from decoded palette data. indices must hold
// one palette index per cell in storage order.
func FromPalette(region geom.Region, origin geom.Vector3, palette []BlockState, indices []uint32) (*Clipboard, error) {
	vol, err := CheckRegion(geom.NewRegion(region.Min, region.Max))
	if err != nil {
		return nil, err
	}
	if len(indices) != vol {
		return nil, fmt.Errorf("block data has %d cells, region %s needs %d", len(indices), region, vol)
	}
	c := New(region)
	c.origin = origin
	remap := make([]uint32, len(palette))
	for i, state := range palette {
		remap[i] = c.intern(state)
	}
	for i, idx := range indices {
		if int(idx) >= len(remap) {
			return nil, fmt.Errorf("cell %d references palette entry %d of %d", i, idx, len(remap))
		}
		c.data[i] = remap[idx]
	}
	return c, nil
}

func (c *Clipboard) intern(state BlockState) uint32 {
	if state.Name == "" {
		state = Air()
	}
	key := state.String()
	if idx, ok := c.keys[key]; ok {
		return idx
	}
	idx := uint32(len(c.palette))
	c.palette = append(c.palette, state)
	c.keys[key] = idx
	return idx
}

func (c *Clipboard) index(pos geom.Vector3) (int, bool) {
	if !c.region.Contains(pos) {
		return 0, false
	}
	d := c.region.Dimensions()
	rel := pos.Sub(c.region.Min)
	return rel.X + rel.Z*d.X + rel.Y*d.X*d.Z, true
}

func (c *Clipboard) position(i int) geom.Vector3 {
	d := c.region.Dimensions()
	layer := d.X * d.Z
	return c.region.Min.Add(geom.V(i%d.X, i/layer, (i%layer)/d.X))
}

func (c *Clipboard) Region() geom.Region { return c.region }

func (c *Clipboard) Dimensions() geom.Vector3 { return c.region.Dimensions() }

func (c *Clipboard) Origin() geom.Vector3 { return c.origin }

func (c *Clipboard) SetOrigin(origin geom.Vector3) { c.origin = origin }

// Block returns the state at pos, or air outside the region.
func (c *Clipboard) Block(pos geom.Vector3) BlockState {
	i, ok := c.index(pos)
	if !ok {
		return Air()
	}
	return c.palette[c.data[i]]
}

// SetBlock stores state at pos. Positions outside the region are an error.
func (c *Clipboard) SetBlock(pos geom.Vector3, state BlockState) error {
	i, ok := c.index(pos)
	if !ok {
		return fmt.Errorf("position %s is outside region %s", pos, c.region)
	}
	c.data[i] = c.intern(state)
	return nil
}

// Palette returns every state interned so far, including ones no longer used.
func (c *Clipboard) Palette() []BlockState {
	out := make([]BlockState, len(c.palette))
	copy(out, c.palette)
	return out
}

// PaletteData returns a compact palette holding only states that occur,
// in first-seen storage order, and the per-cell indices into it.
func (c *Clipboard) PaletteData() ([]BlockState, []uint32) {
	remap := make(map[uint32]uint32, len(c.palette))
	var palette []BlockState
	indices := make([]uint32, len(c.data))
	for i, old := range c.data {
		idx, ok := remap[old]
		if !ok {
			idx = uint32(len(palette))
			remap[old] = idx
			palette = append(palette, c.palette[old])
		}
		indices[i] = idx
	}
	return palette, indices
}

// ForEach calls fn for every cell in storage order.
func (c *Clipboard) ForEach(fn func(pos geom.Vector3, state BlockState)) {
	for i, idx := range c.data {
		fn(c.position(i), c.palette[idx])
	}
}

// Count returns the number of non-air cells.
func (c *Clipboard) Count() int {
	n := 0
	for _, idx := range c.data {
		if !c.palette[idx].IsAir() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (c *Clipboard) Clone() *Clipboard {
	out := &Clipboard{
		region:  c.region,
		origin:  c.origin,
		palette: c.Palette(),
		keys:    make(map[string]uint32, len(c.keys)),
		data:    make([]uint32, len(c.data)),
	}
	for k, v := range c.keys {
		out.keys[k] = v
	}
	copy(out.data, c.data)
	return out
}

// Equal reports whether both clipboards cover the same region with the same
// origin and the same block at every position.
func (c *Clipboard) Equal(o *Clipboard) bool {
	if c == o {
		return true
	}
	if c == nil || o == nil {
		return false
	}
	if c.region != o.region || c.origin != o.origin {
		return false
	}
	for i := range c.data {
		if c.palette[c.data[i]].String() != o.palette[o.data[i]].String() {
			return false
		}
	}
	return true
}

// Diff describes the first position where c and o differ, or "" when equal.
func (c *Clipboard) Diff(o *Clipboard) string {
	switch {
	case c.Equal(o):
		return ""
	case c == nil || o == nil:
		return "one clipboard is nil"
	case c.region != o.region:
		return fmt.Sprintf("region %s != %s", c.region, o.region)
	case c.origin != o.origin:
		return fmt.Sprintf("origin %s != %s", c.origin, o.origin)
	}
	for i := range c.data {
		a, b := c.palette[c.data[i]], o.palette[o.data[i]]
		if a.String() != b.String() {
			return fmt.Sprintf("block at %s: %s != %s", c.position(i), a, b)
		}
	}
	return ""
}
