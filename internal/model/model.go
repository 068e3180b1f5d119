package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels lists every struct here that is a table in the journal schema.
var DatabaseModels = []interface{}{
	&EngineInfo{},
	&Session{},
	&TrackingChange{},
	&MatchTransition{},
	&MotionEvent{},
	&PoseSample{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// EngineInfo describes the installation writing into the database.
type EngineInfo struct {
	gorm.Model
	Name        string `json:"name" gorm:"size:127"`
	Description string `json:"description" gorm:"size:255"`
}

func (*EngineInfo) TableName() string {
	return "engine_infos"
}

////////////////////////
// JOURNAL MODELS
////////////////////////

// Session is one run of the engine.
type Session struct {
	gorm.Model
	Name      string     `json:"name" gorm:"size:200"`
	Tag       string     `json:"tag" gorm:"size:127"`
	Version   string     `json:"version" gorm:"size:64"`
	StartTime time.Time  `json:"startTime" gorm:"type:timestamptz;index:idx_session_start"`
	EndTime   *time.Time `json:"endTime" gorm:"type:timestamptz"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Location  geom.Point `json:"location"` // site origin in EPSG:3857
}

func (*Session) TableName() string {
	return "sessions"
}

// TrackingChange is a debounced tracking transition of one anchor.
type TrackingChange struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time `json:"time" gorm:"type:timestamptz;"`
	SessionID uint      `json:"sessionId" gorm:"index:idx_trackingchange_session_id"`
	Session   Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick      uint64    `json:"tick" gorm:"index:idx_trackingchange_tick"`
	AnchorID  string    `json:"anchorId" gorm:"size:127;index:idx_trackingchange_anchor"`
	SpotID    string    `json:"spotId" gorm:"size:127"`
	Tracked   bool      `json:"tracked" gorm:"default:false"`
	Tier      string    `json:"tier" gorm:"size:32"`
}

func (*TrackingChange) TableName() string {
	return "tracking_changes"
}

// MatchTransition is one coordinator evaluation with its cell and action.
type MatchTransition struct {
	ID         uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time       time.Time `json:"time" gorm:"type:timestamptz;"`
	SessionID  uint      `json:"sessionId" gorm:"index:idx_matchtransition_session_id"`
	Session    Session   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick       uint64    `json:"tick"`
	Reason     string    `json:"reason" gorm:"size:127"`
	Hour       float64   `json:"hour"`
	ScheduleID string    `json:"scheduleId" gorm:"size:127"`
	AnchorID   string    `json:"anchorId" gorm:"size:127"`
	LastMatch  bool      `json:"lastMatch"`
	NowMatch   bool      `json:"nowMatch"`
	Cell       string    `json:"cell" gorm:"size:32;index:idx_matchtransition_cell"`
	Action     string    `json:"action" gorm:"size:64"`
}

func (*MatchTransition) TableName() string {
	return "match_transitions"
}

// MotionEvent is a step of the motion lifecycle. Trail holds the XYZ path
// travelled during the run that ended with this event, if any.
type MotionEvent struct {
	ID         uint            `json:"id" gorm:"primarykey;autoIncrement;"`
	Time       time.Time       `json:"time" gorm:"type:timestamptz;"`
	SessionID  uint            `json:"sessionId" gorm:"index:idx_motionevent_session_id"`
	Session    Session         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick       uint64          `json:"tick"`
	Token      uint64          `json:"token" gorm:"index:idx_motionevent_token"`
	Kind       string          `json:"kind" gorm:"size:32"`
	ScheduleID string          `json:"scheduleId" gorm:"size:127"`
	Forward    bool            `json:"forward"`
	From       geom.Point      `json:"from"`
	To         geom.Point      `json:"to"`
	ElapsedMs  int64           `json:"elapsedMs"`
	Trail      geom.LineString `json:"trail"`
	TrailLen   float64         `json:"trailLength"`
}

func (*MotionEvent) TableName() string {
	return "motion_events"
}

// PoseSample is a periodic sample of the character pose.
type PoseSample struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time      time.Time      `json:"time" gorm:"type:timestamptz;index:idx_posesample_time"`
	SessionID uint           `json:"sessionId" gorm:"index:idx_posesample_session_id"`
	Session   Session        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Tick      uint64         `json:"tick"`
	Token     uint64         `json:"token"`
	Position  geom.Point     `json:"position"`
	Rotation  datatypes.JSON `json:"rotation" gorm:"default:'[]'"` // [x,y,z,w]
	Scale     datatypes.JSON `json:"scale" gorm:"default:'[]'"`    // [x,y,z]
	Following bool           `json:"following" gorm:"default:false"`
	Moving    bool           `json:"moving" gorm:"default:false"`
}

func (*PoseSample) TableName() string {
	return "pose_samples"
}
