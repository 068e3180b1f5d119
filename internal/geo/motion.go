package geo

import (
	"math"

	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

// Clamp01 clamps v to [0,1].
func Clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Lerp interpolates between a and b.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// SmoothStopFactor scales speed down to half within one metre of the target.
func SmoothStopFactor(distance float64) float64 {
	return Lerp(0.5, 1, Clamp01(distance/1.0))
}

// MoveTowards steps current toward target by at most maxDelta without overshooting.
func MoveTowards(current, target core.Vec3, maxDelta float64) core.Vec3 {
	d := target.Sub(current)
	dist := d.Len()
	if dist <= maxDelta || dist == 0 {
		return target
	}
	return current.Add(d.Scale(maxDelta / dist))
}

// LookRotation returns the rotation whose +Z axis faces forward with +Y as
// close to up as possible. A degenerate forward yields the identity.
func LookRotation(forward, up core.Vec3) core.Quat {
	z := forward.Normalized()
	if z.LenSq() == 0 {
		return core.Identity
	}
	x := up.Cross(z).Normalized()
	if x.LenSq() == 0 {
		// forward is parallel to up
		x = core.Vec3{X: 1}.Cross(z).Normalized()
		if x.LenSq() == 0 {
			x = core.Vec3{Z: 1}.Cross(z).Normalized()
		}
	}
	y := z.Cross(x)

	m00, m01, m02 := x.X, y.X, z.X
	m10, m11, m12 := x.Y, y.Y, z.Y
	m20, m21, m22 := x.Z, y.Z, z.Z

	var q core.Quat
	trace := m00 + m11 + m22
	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q = core.Quat{X: (m21 - m12) * s, Y: (m02 - m20) * s, Z: (m10 - m01) * s, W: 0.25 / s}
	case m00 > m11 && m00 > m22:
		s := 2 * math.Sqrt(1+m00-m11-m22)
		q = core.Quat{X: 0.25 * s, Y: (m01 + m10) / s, Z: (m02 + m20) / s, W: (m21 - m12) / s}
	case m11 > m22:
		s := 2 * math.Sqrt(1+m11-m00-m22)
		q = core.Quat{X: (m01 + m10) / s, Y: 0.25 * s, Z: (m12 + m21) / s, W: (m02 - m20) / s}
	default:
		s := 2 * math.Sqrt(1+m22-m00-m11)
		q = core.Quat{X: (m02 + m20) / s, Y: (m12 + m21) / s, Z: 0.25 * s, W: (m10 - m01) / s}
	}
	return q.Normalized()
}

// Slerp spherically interpolates from a to b. t is clamped to [0,1].
func Slerp(a, b core.Quat, t float64) core.Quat {
	t = Clamp01(t)
	a, b = a.Normalized(), b.Normalized()
	d := a.Dot(b)
	if d < 0 {
		b = core.Quat{X: -b.X, Y: -b.Y, Z: -b.Z, W: -b.W}
		d = -d
	}
	if d > 0.9995 {
		return core.Quat{
			X: Lerp(a.X, b.X, t),
			Y: Lerp(a.Y, b.Y, t),
			Z: Lerp(a.Z, b.Z, t),
			W: Lerp(a.W, b.W, t),
		}.Normalized()
	}
	theta := math.Acos(d)
	sinTheta := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sinTheta
	wb := math.Sin(t*theta) / sinTheta
	return core.Quat{
		X: wa*a.X + wb*b.X,
		Y: wa*a.Y + wb*b.Y,
		Z: wa*a.Z + wb*b.Z,
		W: wa*a.W + wb*b.W,
	}.Normalized()
}
