package parser

import "github.com/MiaMao0615/AR-Accompanied/pkg/core"

// TrackingStatus is a raw tracking verdict for one anchor.
type TrackingStatus struct {
	AnchorID string
	Tier     core.ConfidenceTier
}

// AnchorPose is a world pose pushed for one anchor.
type AnchorPose struct {
	AnchorID string
	Pose     core.Pose
}

// SpotSelection names a spot of an anchor.
type SpotSelection struct {
	AnchorID string
	SpotID   string
}
