// pkg/core/pose.go
package core

import (
	"errors"
	"math"
)

// ErrNonFinite is returned for poses carrying NaN or infinite components.
var ErrNonFinite = errors.New("non-finite pose component")

func finite(fs ...float64) bool {
	for _, f := range fs {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Vec3 is a position, direction or scale in world units
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// One is the unit scale vector.
var One = Vec3{X: 1, Y: 1, Z: 1}

// Up is the world up axis used for heading computations.
var Up = Vec3{Y: 1}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Mul multiplies component-wise.
func (v Vec3) Mul(o Vec3) Vec3 { return Vec3{v.X * o.X, v.Y * o.Y, v.Z * o.Z} }

func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// Len returns the euclidean length.
func (v Vec3) Len() float64 { return math.Sqrt(v.Dot(v)) }

// LenSq returns the squared length.
func (v Vec3) LenSq() float64 { return v.Dot(v) }

// Normalized returns v scaled to unit length, or the zero vector if v is degenerate.
func (v Vec3) Normalized() Vec3 {
	l := v.Len()
	if l < 1e-12 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// IsFinite reports whether no component is NaN or infinite.
func (v Vec3) IsFinite() bool { return finite(v.X, v.Y, v.Z) }

// ApproxEqual compares component-wise within eps.
func (v Vec3) ApproxEqual(o Vec3, eps float64) bool {
	return math.Abs(v.X-o.X) <= eps && math.Abs(v.Y-o.Y) <= eps && math.Abs(v.Z-o.Z) <= eps
}

// Quat is a rotation quaternion
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Identity is the no-rotation quaternion.
var Identity = Quat{W: 1}

// Mul composes q then o (q * o).
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

func (q Quat) Dot(o Quat) float64 { return q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W }

// Normalized returns q at unit length. A zero quaternion becomes Identity.
func (q Quat) Normalized() Quat {
	l := math.Sqrt(q.Dot(q))
	if l < 1e-12 {
		return Identity
	}
	return Quat{q.X / l, q.Y / l, q.Z / l, q.W / l}
}

// IsFinite reports whether no component is NaN or infinite.
func (q Quat) IsFinite() bool { return finite(q.X, q.Y, q.Z, q.W) }

// Rotate applies q to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

// Angle returns the angle in radians between two rotations.
func (q Quat) Angle(o Quat) float64 {
	d := math.Abs(q.Normalized().Dot(o.Normalized()))
	if d > 1 {
		d = 1
	}
	return 2 * math.Acos(d)
}

// Pose is a world transform. Scale is always the world (lossy) scale.
type Pose struct {
	Position Vec3 `json:"position"`
	Rotation Quat `json:"rotation"`
	Scale    Vec3 `json:"scale"`
}

// IsFinite reports whether position, rotation and scale are all finite.
func (p Pose) IsFinite() bool {
	return p.Position.IsFinite() && p.Rotation.IsFinite() && p.Scale.IsFinite()
}

// NewPose builds a pose at p with identity rotation and unit scale.
func NewPose(p Vec3) Pose {
	return Pose{Position: p, Rotation: Identity, Scale: One}
}

// Compose places a pose expressed local to parent into parent's space.
func (parent Pose) Compose(local Pose) Pose {
	return Pose{
		Position: parent.Position.Add(parent.Rotation.Rotate(local.Position.Mul(parent.Scale))),
		Rotation: parent.Rotation.Mul(local.Rotation).Normalized(),
		Scale:    parent.Scale.Mul(local.Scale),
	}
}

// Sanitized fills an unset rotation with Identity and an unset scale with One.
func (p Pose) Sanitized() Pose {
	if p.Rotation == (Quat{}) {
		p.Rotation = Identity
	} else {
		p.Rotation = p.Rotation.Normalized()
	}
	if p.Scale == (Vec3{}) {
		p.Scale = One
	}
	return p
}
