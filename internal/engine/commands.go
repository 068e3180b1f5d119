package engine

import (
	"time"

	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

type commandKind int

const (
	cmdTrackingStatus commandKind = iota
	cmdTrackingChanged
	cmdScheduleTick
	cmdAnchorPose
	cmdSetSpot
	cmdCycleSpot
)

func (k commandKind) String() string {
	switch k {
	case cmdTrackingStatus:
		return "tracking_status"
	case cmdTrackingChanged:
		return "tracking_changed"
	case cmdScheduleTick:
		return "schedule_tick"
	case cmdAnchorPose:
		return "anchor_pose"
	case cmdSetSpot:
		return "set_spot"
	case cmdCycleSpot:
		return "cycle_spot"
	default:
		return "unknown"
	}
}

// command is one inbox entry, stamped with the time it was received.
type command struct {
	kind   commandKind
	at     time.Time
	anchor string
	tier   core.ConfidenceTier
	pose   core.Pose
	spotID string
}
