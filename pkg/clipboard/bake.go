package clipboard

import (
	"math"

	"schemctl/pkg/errors"
	"schemctl/pkg/geom"
)

// Bake returns c with t applied to its geometry and block orientations.
//
// The identity transform returns c itself without copying; callers that
// mutate the result must Clone first. Otherwise the result is a new clipboard
// whose region bounds the transformed corners and whose origin equals c's.
// Positions are taken relative to the origin before transforming. c is never
// modified. A transform that grows the region past MaxVolume is an error.
//
// Bake panics with an *errors.Error of KindInvariant if a transformed cell
// lands outside the computed region.
func Bake(c *Clipboard, t geom.Transform) (*Clipboard, error) {
	if c == nil {
		return nil, errors.EmptyClipboard()
	}
	if t.IsIdentity() {
		return c, nil
	}

	origin := c.Origin()
	mapPos := func(p geom.Vector3) geom.Vector3 {
		return t.ApplyVector3(p.Sub(origin)).Add(origin)
	}

	corners := c.Region().Corners()
	lo, hi := mapPos(corners[0]), mapPos(corners[0])
	for _, corner := range corners[1:] {
		p := mapPos(corner)
		lo, hi = lo.Min(p), hi.Max(p)
	}

	region := geom.NewRegion(lo, hi)
	if _, err := CheckRegion(region); err != nil {
		return nil, errors.WrapWithCode(err, errors.ExitCodeInvalidInput, "transformed clipboard is too large")
	}
	out := New(region)
	out.SetOrigin(origin)

	rotated := make([]uint32, len(c.palette))
	for i, state := range c.palette {
		rotated[i] = out.intern(RotateState(state, t))
	}

	for i, idx := range c.data {
		src := c.position(i)
		dst := mapPos(src)
		j, ok := out.index(dst)
		if !ok {
			panic(errors.Invariant("block %s maps to %s outside baked region %s", src, dst, out.Region()))
		}
		out.data[j] = rotated[idx]
	}
	return out, nil
}

var directions = []struct {
	name string
	vec  geom.Vec3f
}{
	{"north", geom.Vec3f{Z: -1}},
	{"south", geom.Vec3f{Z: 1}},
	{"east", geom.Vec3f{X: 1}},
	{"west", geom.Vec3f{X: -1}},
	{"up", geom.Vec3f{Y: 1}},
	{"down", geom.Vec3f{Y: -1}},
}

func directionOf(name string) (geom.Vec3f, bool) {
	for _, d := range directions {
		if d.name == name {
			return d.vec, true
		}
	}
	return geom.Vec3f{}, false
}

func nearestDirection(v geom.Vec3f) string {
	best, bestDot := "", math.Inf(-1)
	for _, d := range directions {
		if dot := v.Dot(d.vec); dot > bestDot {
			best, bestDot = d.name, dot
		}
	}
	return best
}

func dominantAxis(v geom.Vec3f) string {
	x, y, z := math.Abs(v.X), math.Abs(v.Y), math.Abs(v.Z)
	switch {
	case x >= y && x >= z:
		return "x"
	case y >= z:
		return "y"
	default:
		return "z"
	}
}

// RotateState rewrites the orientation properties of state for t: facing,
// axis, and the vertical half/type of stairs and slabs.
func RotateState(state BlockState, t geom.Transform) BlockState {
	if len(state.Properties) == 0 || t.IsIdentity() {
		return state
	}
	out := state

	if facing, ok := state.Properties["facing"]; ok {
		if v, ok := directionOf(facing); ok {
			out = out.With("facing", nearestDirection(t.ApplyDirection(v)))
		}
	}

	if axis, ok := state.Properties["axis"]; ok {
		var v geom.Vec3f
		switch axis {
		case "x":
			v.X = 1
		case "y":
			v.Y = 1
		case "z":
			v.Z = 1
		}
		if v != (geom.Vec3f{}) {
			out = out.With("axis", dominantAxis(t.ApplyDirection(v)))
		}
	}

	if t.ApplyDirection(geom.Vec3f{Y: 1}).Y < 0 {
		for _, key := range []string{"half", "type"} {
			switch state.Properties[key] {
			case "top":
				out = out.With(key, "bottom")
			case "bottom":
				out = out.With(key, "top")
			}
		}
	}
	return out
}
