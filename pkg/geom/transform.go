package geom

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const epsilon = 1e-9

// Transform is an immutable affine transform over block space. The zero
// value is the identity.
type Transform struct {
	m *matrix
}

// matrix rows are x', y', z'; columns 0-2 are the linear part, column 3 the
// translation.
type matrix [3][4]float64

var identityMatrix = matrix{
	{1, 0, 0, 0},
	{0, 1, 0, 0},
	{0, 0, 1, 0},
}

func fromMatrix(m matrix) Transform {
	return Transform{m: &m}
}

func (t Transform) mat() matrix {
	if t.m == nil {
		return identityMatrix
	}
	return *t.m
}

func Identity() Transform { return Transform{} }

// sinCos snaps right angles to exact values so quarter turns stay integral.
func sinCos(degrees float64) (float64, float64) {
	d := math.Mod(degrees, 360)
	if d < 0 {
		d += 360
	}
	switch d {
	case 0:
		return 0, 1
	case 90:
		return 1, 0
	case 180:
		return 0, -1
	case 270:
		return -1, 0
	}
	rad := d * math.Pi / 180
	return math.Sin(rad), math.Cos(rad)
}

func RotateX(degrees float64) Transform {
	s, c := sinCos(degrees)
	return fromMatrix(matrix{
		{1, 0, 0, 0},
		{0, c, -s, 0},
		{0, s, c, 0},
	})
}

// RotateY turns around the vertical axis (yaw). A quarter turn maps +X to -Z.
func RotateY(degrees float64) Transform {
	s, c := sinCos(degrees)
	return fromMatrix(matrix{
		{c, 0, s, 0},
		{0, 1, 0, 0},
		{-s, 0, c, 0},
	})
}

func RotateZ(degrees float64) Transform {
	s, c := sinCos(degrees)
	return fromMatrix(matrix{
		{c, -s, 0, 0},
		{s, c, 0, 0},
		{0, 0, 1, 0},
	})
}

func Scale(x, y, z float64) Transform {
	return fromMatrix(matrix{
		{x, 0, 0, 0},
		{0, y, 0, 0},
		{0, 0, z, 0},
	})
}

func Translate(x, y, z float64) Transform {
	return fromMatrix(matrix{
		{1, 0, 0, x},
		{0, 1, 0, y},
		{0, 0, 1, z},
	})
}

// Flip mirrors across the plane perpendicular to axis.
func Flip(axis Axis) Transform {
	switch axis {
	case AxisX:
		return Scale(-1, 1, 1)
	case AxisY:
		return Scale(1, -1, 1)
	default:
		return Scale(1, 1, -1)
	}
}

// Rotate turns around axis by degrees.
func Rotate(axis Axis, degrees float64) Transform {
	switch axis {
	case AxisX:
		return RotateX(degrees)
	case AxisZ:
		return RotateZ(degrees)
	default:
		return RotateY(degrees)
	}
}

// Combine returns the transform that applies t first and then next.
func (t Transform) Combine(next Transform) Transform {
	if t.IsIdentity() {
		return next
	}
	if next.IsIdentity() {
		return t
	}
	a, b := next.mat(), t.mat()
	var out matrix
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			sum := 0.0
			for k := 0; k < 3; k++ {
				sum += a[row][k] * b[k][col]
			}
			if col == 3 {
				sum += a[row][3]
			}
			out[row][col] = cleanup(sum)
		}
	}
	return fromMatrix(out)
}

func cleanup(f float64) float64 {
	if r := math.Round(f); math.Abs(f-r) < epsilon {
		return r
	}
	return f
}

func (t Transform) Apply(v Vec3f) Vec3f {
	m := t.mat()
	return Vec3f{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z + m[0][3],
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z + m[1][3],
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z + m[2][3],
	}
}

// ApplyVector3 transforms a block position and rounds to the nearest block.
func (t Transform) ApplyVector3(v Vector3) Vector3 {
	return t.Apply(v.Float()).Round()
}

// ApplyDirection transforms a direction, ignoring translation.
func (t Transform) ApplyDirection(v Vec3f) Vec3f {
	m := t.mat()
	return Vec3f{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

func (t Transform) Determinant() float64 {
	m := t.mat()
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Inverse returns the inverse transform; ok is false for singular transforms.
func (t Transform) Inverse() (Transform, bool) {
	if t.IsIdentity() {
		return t, true
	}
	det := t.Determinant()
	if math.Abs(det) < epsilon {
		return Transform{}, false
	}
	m := t.mat()
	var inv matrix
	inv[0][0] = (m[1][1]*m[2][2] - m[1][2]*m[2][1]) / det
	inv[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) / det
	inv[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) / det
	inv[1][0] = (m[1][2]*m[2][0] - m[1][0]*m[2][2]) / det
	inv[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) / det
	inv[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) / det
	inv[2][0] = (m[1][0]*m[2][1] - m[1][1]*m[2][0]) / det
	inv[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) / det
	inv[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) / det
	for row := 0; row < 3; row++ {
		inv[row][3] = -(inv[row][0]*m[0][3] + inv[row][1]*m[1][3] + inv[row][2]*m[2][3])
		for col := 0; col < 4; col++ {
			inv[row][col] = cleanup(inv[row][col])
		}
	}
	return fromMatrix(inv), true
}

func (t Transform) IsIdentity() bool {
	if t.m == nil {
		return true
	}
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			if math.Abs(t.m[row][col]-identityMatrix[row][col]) > epsilon {
				return false
			}
		}
	}
	return true
}

// Equal compares two transforms within floating point tolerance.
func (t Transform) Equal(o Transform) bool {
	a, b := t.mat(), o.mat()
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			if math.Abs(a[row][col]-b[row][col]) > epsilon {
				return false
			}
		}
	}
	return true
}

func (t Transform) String() string {
	if t.IsIdentity() {
		return "identity"
	}
	m := t.mat()
	rows := make([]string, 3)
	for i, r := range m {
		rows[i] = fmt.Sprintf("[%g %g %g | %g]", r[0], r[1], r[2], r[3])
	}
	return strings.Join(rows, " ")
}

// Axis names one of the three block axes.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	default:
		return "z"
	}
}

// ParseAxis accepts x, y or z in any case.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x":
		return AxisX, nil
	case "y", "":
		return AxisY, nil
	case "z":
		return AxisZ, nil
	default:
		return AxisY, fmt.Errorf("invalid axis %q (expected x, y or z)", s)
	}
}

// ParseDegrees parses an angle such as "90", "-90" or "45.5".
func ParseDegrees(s string) (float64, error) {
	deg, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "deg"), 64)
	if err != nil || math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0, fmt.Errorf("invalid angle %q", s)
	}
	return deg, nil
}

// ParseRightAngle is ParseDegrees restricted to multiples of 90. Baking any
// other angle would not map the block grid onto itself.
func ParseRightAngle(s string) (float64, error) {
	deg, err := ParseDegrees(s)
	if err != nil {
		return 0, err
	}
	if math.Mod(deg, 90) != 0 {
		return 0, fmt.Errorf("angle %q is not a multiple of 90 degrees", s)
	}
	return deg, nil
}
