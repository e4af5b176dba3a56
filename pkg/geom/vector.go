// Package geom holds the integer block coordinates, regions, and affine
// transforms used by clipboards.
package geom

import (
	"fmt"
	"math"
	"math/bits"
)

// Vector3 is an integer block position.
type Vector3 struct {
	X int `json:"x" yaml:"x" cbor:"x"`
	Y int `json:"y" yaml:"y" cbor:"y"`
	Z int `json:"z" yaml:"z" cbor:"z"`
}

func V(x, y, z int) Vector3 { return Vector3{X: x, Y: y, Z: z} }

func (v Vector3) Add(o Vector3) Vector3 { return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vector3) Sub(o Vector3) Vector3 { return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vector3) Min(o Vector3) Vector3 {
	return Vector3{min(v.X, o.X), min(v.Y, o.Y), min(v.Z, o.Z)}
}

func (v Vector3) Max(o Vector3) Vector3 {
	return Vector3{max(v.X, o.X), max(v.Y, o.Y), max(v.Z, o.Z)}
}

func (v Vector3) Float() Vec3f { return Vec3f{float64(v.X), float64(v.Y), float64(v.Z)} }

func (v Vector3) String() string { return fmt.Sprintf("(%d, %d, %d)", v.X, v.Y, v.Z) }

// Vec3f is a real-valued vector used while transforming.
type Vec3f struct {
	X, Y, Z float64
}

// Round snaps v to the nearest block position.
func (v Vec3f) Round() Vector3 {
	return Vector3{int(math.Round(v.X)), int(math.Round(v.Y)), int(math.Round(v.Z))}
}

func (v Vec3f) Dot(o Vec3f) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Region is an axis-aligned box with inclusive bounds.
type Region struct {
	Min Vector3 `json:"min" yaml:"min" cbor:"min"`
	Max Vector3 `json:"max" yaml:"max" cbor:"max"`
}

// NewRegion returns the region spanning a and b in any order.
func NewRegion(a, b Vector3) Region {
	return Region{Min: a.Min(b), Max: a.Max(b)}
}

// RegionOfSize returns the region starting at start with the given dimensions.
func RegionOfSize(start Vector3, size Vector3) Region {
	return Region{Min: start, Max: start.Add(size).Sub(Vector3{1, 1, 1})}
}

func (r Region) Dimensions() Vector3 {
	return r.Max.Sub(r.Min).Add(Vector3{1, 1, 1})
}

func (r Region) Volume() int {
	d := r.Dimensions()
	return d.X * d.Y * d.Z
}

// CheckedVolume is Volume for regions read from untrusted input. ok is false
// when the region is inverted or its volume does not fit in an int.
func (r Region) CheckedVolume() (vol int, ok bool) {
	total := uint64(1)
	for _, span := range [3][2]int{{r.Min.X, r.Max.X}, {r.Min.Y, r.Max.Y}, {r.Min.Z, r.Max.Z}} {
		lo, hi := span[0], span[1]
		if hi < lo {
			return 0, false
		}
		// modular difference is exact for hi >= lo; zero means 2^64 cells
		n := uint64(hi) - uint64(lo) + 1
		if n == 0 {
			return 0, false
		}
		high, low := bits.Mul64(total, n)
		if high != 0 || low > math.MaxInt {
			return 0, false
		}
		total = low
	}
	return int(total), true
}

func (r Region) Contains(v Vector3) bool {
	return v.X >= r.Min.X && v.X <= r.Max.X &&
		v.Y >= r.Min.Y && v.Y <= r.Max.Y &&
		v.Z >= r.Min.Z && v.Z <= r.Max.Z
}

// Corners returns the eight corner positions of the region.
func (r Region) Corners() [8]Vector3 {
	a, b := r.Min, r.Max
	return [8]Vector3{
		{a.X, a.Y, a.Z}, {b.X, a.Y, a.Z}, {a.X, b.Y, a.Z}, {a.X, a.Y, b.Z},
		{b.X, b.Y, a.Z}, {b.X, a.Y, b.Z}, {a.X, b.Y, b.Z}, {b.X, b.Y, b.Z},
	}
}

func (r Region) String() string { return fmt.Sprintf("%s - %s", r.Min, r.Max) }
