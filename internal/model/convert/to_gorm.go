// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"time"

	"github.com/MiaMao0615/AR-Accompanied/internal/geo"
	"github.com/MiaMao0615/AR-Accompanied/internal/model"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// floatsToJSON converts a float slice to datatypes.JSON for DB storage.
func floatsToJSON(values ...float64) datatypes.JSON {
	if len(values) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(values)
	return datatypes.JSON(data)
}

// trailToLineString returns an empty line string for trails too short to draw.
func trailToLineString(points []core.Vec3) geom.LineString {
	ls, err := geo.Trail(points)
	if err != nil {
		return geom.LineString{}
	}
	return ls
}

// CoreToSession converts a core.Session to a GORM model.Session. The site
// origin is stored projected when a site is configured.
func CoreToSession(s core.Session, tag string, site *geo.Site) model.Session {
	out := model.Session{
		Name:      s.Name,
		Tag:       tag,
		Version:   s.Version,
		StartTime: s.StartTime,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
	}
	out.ID = s.ID
	if !s.EndTime.IsZero() {
		end := s.EndTime
		out.EndTime = &end
	}
	if site != nil {
		out.Location = site.Project(core.Vec3{})
	}
	return out
}

// CoreToTrackingChange converts a core.TrackingChange to a GORM model.
func CoreToTrackingChange(c core.TrackingChange) model.TrackingChange {
	return model.TrackingChange{
		Time:      c.Time,
		SessionID: c.SessionID,
		Tick:      c.Tick,
		AnchorID:  c.AnchorID,
		SpotID:    c.SpotID,
		Tracked:   c.Tracked,
		Tier:      c.Tier,
	}
}

// CoreToMatchTransition converts a core.MatchTransition to a GORM model.
func CoreToMatchTransition(m core.MatchTransition) model.MatchTransition {
	return model.MatchTransition{
		Time:       m.Time,
		SessionID:  m.SessionID,
		Tick:       m.Tick,
		Reason:     m.Reason,
		Hour:       m.Hour,
		ScheduleID: m.ScheduleID,
		AnchorID:   m.AnchorID,
		LastMatch:  m.LastMatch,
		NowMatch:   m.NowMatch,
		Cell:       m.Cell,
		Action:     m.Action,
	}
}

// CoreToMotionEvent converts a core.MotionEvent to a GORM model.
func CoreToMotionEvent(e core.MotionEvent) model.MotionEvent {
	return model.MotionEvent{
		Time:       e.Time,
		SessionID:  e.SessionID,
		Tick:       e.Tick,
		Token:      e.Token,
		Kind:       e.Kind,
		ScheduleID: e.ScheduleID,
		Forward:    e.Forward,
		From:       geo.PointZ(e.From),
		To:         geo.PointZ(e.To),
		ElapsedMs:  e.Elapsed.Milliseconds(),
		Trail:      trailToLineString(e.Trail),
		TrailLen:   geo.TrailLength(e.Trail),
	}
}

// CoreToPoseSample converts a core.PoseSample to a GORM model.
func CoreToPoseSample(p core.PoseSample) model.PoseSample {
	r := p.Pose.Rotation
	s := p.Pose.Scale
	return model.PoseSample{
		Time:      p.Time,
		SessionID: p.SessionID,
		Tick:      p.Tick,
		Token:     p.Token,
		Position:  geo.PointZ(p.Pose.Position),
		Rotation:  floatsToJSON(r.X, r.Y, r.Z, r.W),
		Scale:     floatsToJSON(s.X, s.Y, s.Z),
		Following: p.Following,
		Moving:    p.Moving,
	}
}

func elapsed(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
