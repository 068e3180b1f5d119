// pkg/core/tracking.go
package core

import (
	"errors"
	"fmt"
	"strings"
)

// ConfidenceTier is the raw verdict reported by the vision system for one anchor.
type ConfidenceTier int

const (
	TierNoPose ConfidenceTier = iota
	TierLimited
	TierExtendedTracked
	TierTracked
)

var tierNames = map[ConfidenceTier]string{
	TierNoPose:          "NO_POSE",
	TierLimited:         "LIMITED",
	TierExtendedTracked: "EXTENDED_TRACKED",
	TierTracked:         "TRACKED",
}

func (t ConfidenceTier) String() string {
	if s, ok := tierNames[t]; ok {
		return s
	}
	return fmt.Sprintf("TIER(%d)", int(t))
}

// ErrInvalidTier is returned for status names that map to no tier.
var ErrInvalidTier = errors.New("invalid confidence tier")

// ParseConfidenceTier maps a vision-system status name onto a tier.
// DETECTED and UNKNOWN have no pose and map to TierNoPose.
func ParseConfidenceTier(s string) (ConfidenceTier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACKED":
		return TierTracked, nil
	case "EXTENDED_TRACKED", "EXTENDED":
		return TierExtendedTracked, nil
	case "LIMITED":
		return TierLimited, nil
	case "NO_POSE", "DETECTED", "UNKNOWN", "":
		return TierNoPose, nil
	default:
		return TierNoPose, fmt.Errorf("%w: %q", ErrInvalidTier, s)
	}
}

// TrackingState is the debounced state of one anchor.
type TrackingState int

const (
	Untracked TrackingState = iota
	Tracked
	PendingLoss
)

func (s TrackingState) String() string {
	switch s {
	case Tracked:
		return "tracked"
	case PendingLoss:
		return "pending_loss"
	default:
		return "untracked"
	}
}

// Target is a live, non-owning reference to a world transform.
// WorldPose reports false once the referenced transform has been destroyed.
type Target interface {
	WorldPose() (Pose, bool)
}

// PosePair is the start and target point of one anchor spot.
type PosePair struct {
	Start  Target
	Target Target
}

// Valid reports whether both ends are present and alive.
func (p PosePair) Valid() bool {
	if p.Start == nil || p.Target == nil {
		return false
	}
	_, okStart := p.Start.WorldPose()
	_, okTarget := p.Target.WorldPose()
	return okStart && okTarget
}

// StaticTarget is a Target that never moves and never dies.
type StaticTarget Pose

func (s StaticTarget) WorldPose() (Pose, bool) { return Pose(s), true }
