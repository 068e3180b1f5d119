package character

import (
	"testing"

	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestTracker_EnsureSpawned(t *testing.T) {
	fb := core.StaticTarget(core.Pose{Position: core.Vec3{X: 1}, Rotation: core.Identity, Scale: core.One})
	tr := NewTracker(fb, core.Vec3{}, nil)

	assert.False(t, tr.Spawned())
	assert.True(t, tr.EnsureSpawned())
	assert.True(t, tr.Spawned())
	assert.Equal(t, core.Vec3{X: 1}, tr.Pose().Position)
	assert.Equal(t, DefaultScale, tr.Pose().Scale)

	// idempotent
	tr.SetPose(core.NewPose(core.Vec3{Y: 5}))
	assert.True(t, tr.EnsureSpawned())
	assert.Equal(t, core.Vec3{Y: 5}, tr.Pose().Position)
}

func TestTracker_MissingFallback(t *testing.T) {
	tr := NewTracker(nil, core.One, nil)
	assert.False(t, tr.EnsureSpawned())
	_, ok := tr.FallbackPose()
	assert.False(t, ok)
}

func TestTracker_TokenMonotonic(t *testing.T) {
	tr := NewTracker(nil, core.One, nil)
	var last uint64
	for i := 0; i < 5; i++ {
		next := tr.BumpToken()
		assert.Greater(t, next, last)
		assert.Equal(t, next, tr.Token())
		last = next
	}
}
