// pkg/core/journal.go
package core

import "time"

// Session is one run of the presence engine.
type Session struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Version   string    `json:"version"`
}

// TrackingChange records a debounced (stable) tracking transition.
type TrackingChange struct {
	SessionID uint
	Time      time.Time
	Tick      uint64
	AnchorID  string
	SpotID    string
	Tracked   bool
	Tier      string
}

// Transition cells of the coordinator table.
const (
	CellMatchToMatch     = "match->match"
	CellMatchToNoMatch   = "match->nomatch"
	CellNoMatchToMatch   = "nomatch->match"
	CellNoMatchToNoMatch = "nomatch->nomatch"
)

// Coordinator actions.
const (
	ActionRefreshSnapshot   = "refresh_snapshot"
	ActionHardFallback      = "hard_fallback"
	ActionReverseToFallback = "reverse_then_fallback"
	ActionAlignAndForward   = "align_and_forward"
	ActionEnsureAtFallback  = "ensure_fallback"
)

// MatchTransition records one coordinator evaluation.
type MatchTransition struct {
	SessionID  uint
	Time       time.Time
	Tick       uint64
	Reason     string
	Hour       float64
	ScheduleID string
	AnchorID   string
	LastMatch  bool
	NowMatch   bool
	Cell       string
	Action     string
}

// Motion lifecycle event kinds.
const (
	MotionAlign      = "align"
	MotionForward    = "forward"
	MotionReverse    = "reverse"
	MotionArrived    = "arrived"
	MotionTimeout    = "timeout"
	MotionFollow     = "follow"
	MotionFallback   = "fallback"
	MotionSuperseded = "superseded"
)

// MotionEvent records a motion lifecycle step.
type MotionEvent struct {
	SessionID  uint
	Time       time.Time
	Tick       uint64
	Token      uint64
	Kind       string
	ScheduleID string
	Forward    bool
	From       Vec3
	To         Vec3
	Elapsed    time.Duration
	Trail      []Vec3
}

// PoseSample is a periodic sample of the character pose.
type PoseSample struct {
	SessionID uint
	Time      time.Time
	Tick      uint64
	Token     uint64
	Pose      Pose
	Following bool
	Moving    bool
}

// Status is the read-only view published by the engine.
type Status struct {
	Time       time.Time `json:"time"`
	Tick       uint64    `json:"tick"`
	Hour       float64   `json:"hour"`
	ScheduleID string    `json:"scheduleId"`
	AnchorID   string    `json:"anchorId"`
	Anchor     string    `json:"anchor"`
	Matched    bool      `json:"matched"`
	Token      uint64    `json:"token"`
	Moving     bool      `json:"moving"`
	Following  bool      `json:"following"`
	Pose       Pose      `json:"pose"`
}

// Journal groups a session with everything recorded during it.
type Journal struct {
	Session         Session
	TrackingChanges []TrackingChange
	Transitions     []MatchTransition
	MotionEvents    []MotionEvent
	PoseSamples     []PoseSample
}

// UploadMetadata describes an exported session journal.
type UploadMetadata struct {
	SessionName string
	Duration    float64
	Tag         string
}
