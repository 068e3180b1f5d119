package geo

import (
	"math"
	"testing"

	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestMoveTowards(t *testing.T) {
	tests := []struct {
		name     string
		from, to core.Vec3
		delta    float64
		want     core.Vec3
	}{
		{"partial step", core.Vec3{}, core.Vec3{X: 10}, 2, core.Vec3{X: 2}},
		{"no overshoot", core.Vec3{}, core.Vec3{X: 1}, 5, core.Vec3{X: 1}},
		{"already there", core.Vec3{Y: 1}, core.Vec3{Y: 1}, 1, core.Vec3{Y: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MoveTowards(tt.from, tt.to, tt.delta)
			assert.True(t, got.ApproxEqual(tt.want, 1e-9), "got %+v", got)
		})
	}
}

func TestSmoothStopFactor(t *testing.T) {
	assert.InDelta(t, 0.5, SmoothStopFactor(0), 1e-9)
	assert.InDelta(t, 0.75, SmoothStopFactor(0.5), 1e-9)
	assert.InDelta(t, 1.0, SmoothStopFactor(1), 1e-9)
	assert.InDelta(t, 1.0, SmoothStopFactor(40), 1e-9)
}

func TestLookRotation(t *testing.T) {
	dirs := []core.Vec3{
		{Z: 1}, {X: 1}, {X: -1}, {Z: -1}, {X: 1, Z: 1}, {X: 0.3, Y: 0.4, Z: -0.8}, {Y: 1}, {Y: -1},
	}
	for _, d := range dirs {
		q := LookRotation(d, core.Up)
		got := q.Rotate(core.Vec3{Z: 1})
		assert.True(t, got.ApproxEqual(d.Normalized(), 1e-9), "dir %+v rotated forward to %+v", d, got)
	}
	assert.Equal(t, core.Identity, LookRotation(core.Vec3{}, core.Up))
}

func TestSlerp(t *testing.T) {
	a := core.Identity
	b := LookRotation(core.Vec3{X: 1}, core.Up)

	assert.InDelta(t, 0, Slerp(a, b, 0).Angle(a), 1e-6)
	assert.InDelta(t, 0, Slerp(a, b, 1).Angle(b), 1e-6)
	assert.InDelta(t, math.Pi/4, Slerp(a, b, 0.5).Angle(a), 1e-6)
	// clamped
	assert.InDelta(t, 0, Slerp(a, b, 7).Angle(b), 1e-6)
}
