// Package character holds the pose of the accompanying character.
package character

import (
	"log/slog"

	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

// DefaultScale is the scale the character is spawned with, relative to the fallback.
var DefaultScale = core.Vec3{X: 0.5, Y: 0.5, Z: 0.5}

// Tracker owns the character pose, its fallback reference, the follow
// target and the motion token counter. The motion orchestrator is its
// only writer.
type Tracker struct {
	pose       core.Pose
	fallback   core.Target
	follow     core.Target
	token      uint64
	spawned    bool
	spawnScale core.Vec3
	logger     *slog.Logger
}

// NewTracker returns a tracker that is not yet spawned. fallback is referenced, not owned.
func NewTracker(fallback core.Target, spawnScale core.Vec3, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if spawnScale == (core.Vec3{}) {
		spawnScale = DefaultScale
	}
	return &Tracker{
		fallback:   fallback,
		spawnScale: spawnScale,
		pose:       core.NewPose(core.Vec3{}),
		logger:     logger,
	}
}

// EnsureSpawned creates the character at the fallback pose if needed. It
// reports false when there is no live fallback to spawn at.
func (t *Tracker) EnsureSpawned() bool {
	if t.spawned {
		return true
	}
	fb, ok := t.FallbackPose()
	if !ok {
		t.logger.Warn("cannot spawn character: missing fallback reference")
		return false
	}
	t.pose = core.Pose{
		Position: fb.Position,
		Rotation: fb.Rotation,
		Scale:    fb.Scale.Mul(t.spawnScale),
	}
	t.spawned = true
	t.logger.Info("character spawned", "position", fb.Position, "scale", t.pose.Scale)
	return true
}

// Spawned reports whether the character exists.
func (t *Tracker) Spawned() bool { return t.spawned }

// Pose returns the current world pose.
func (t *Tracker) Pose() core.Pose { return t.pose }

// SetPose overwrites the world pose.
func (t *Tracker) SetPose(p core.Pose) { t.pose = p }

// Fallback returns the fallback reference.
func (t *Tracker) Fallback() core.Target { return t.fallback }

// SetFallback replaces the fallback reference.
func (t *Tracker) SetFallback(fb core.Target) { t.fallback = fb }

// FallbackPose resolves the fallback reference.
func (t *Tracker) FallbackPose() (core.Pose, bool) {
	if t.fallback == nil {
		return core.Pose{}, false
	}
	return t.fallback.WorldPose()
}

// FollowTarget returns the target being followed, if any.
func (t *Tracker) FollowTarget() core.Target { return t.follow }

// SetFollowTarget starts following target. nil stops following.
func (t *Tracker) SetFollowTarget(target core.Target) { t.follow = target }

// Token returns the current motion token.
func (t *Tracker) Token() uint64 { return t.token }

// BumpToken invalidates every outstanding motion job and returns the new token.
func (t *Tracker) BumpToken() uint64 {
	t.token++
	return t.token
}
