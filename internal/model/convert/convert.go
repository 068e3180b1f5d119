package convert

import (
	"encoding/json"

	"github.com/MiaMao0615/AR-Accompanied/internal/model"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// pointToVec3 reverses geo.PointZ: the point's Z is the local Y (height).
func pointToVec3(p geom.Point) core.Vec3 {
	coord, ok := p.Coordinates()
	if !ok {
		return core.Vec3{}
	}
	return core.Vec3{X: coord.XY.X, Y: coord.Z, Z: coord.XY.Y}
}

// lineStringToTrail reverses geo.Trail.
func lineStringToTrail(ls geom.LineString) []core.Vec3 {
	seq := ls.Coordinates()
	if seq.Length() == 0 {
		return nil
	}
	trail := make([]core.Vec3, seq.Length())
	for i := 0; i < seq.Length(); i++ {
		c := seq.Get(i)
		trail[i] = core.Vec3{X: c.XY.X, Y: c.Z, Z: c.XY.Y}
	}
	return trail
}

func jsonToFloats(data []byte, n int) ([]float64, bool) {
	var values []float64
	if len(data) == 0 || json.Unmarshal(data, &values) != nil || len(values) != n {
		return nil, false
	}
	return values, true
}

// SessionToCore converts a GORM Session to a core.Session.
func SessionToCore(s model.Session) core.Session {
	out := core.Session{
		ID:        s.ID,
		Name:      s.Name,
		StartTime: s.StartTime,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Version:   s.Version,
	}
	if s.EndTime != nil {
		out.EndTime = *s.EndTime
	}
	return out
}

// TrackingChangeToCore converts a GORM TrackingChange to a core.TrackingChange.
func TrackingChangeToCore(c model.TrackingChange) core.TrackingChange {
	return core.TrackingChange{
		SessionID: c.SessionID,
		Time:      c.Time,
		Tick:      c.Tick,
		AnchorID:  c.AnchorID,
		SpotID:    c.SpotID,
		Tracked:   c.Tracked,
		Tier:      c.Tier,
	}
}

// MatchTransitionToCore converts a GORM MatchTransition to a core.MatchTransition.
func MatchTransitionToCore(m model.MatchTransition) core.MatchTransition {
	return core.MatchTransition{
		SessionID:  m.SessionID,
		Time:       m.Time,
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

// MotionEventToCore converts a GORM MotionEvent to a core.MotionEvent.
func MotionEventToCore(e model.MotionEvent) core.MotionEvent {
	return core.MotionEvent{
		SessionID:  e.SessionID,
		Time:       e.Time,
		Tick:       e.Tick,
		Token:      e.Token,
		Kind:       e.Kind,
		ScheduleID: e.ScheduleID,
		Forward:    e.Forward,
		From:       pointToVec3(e.From),
		To:         pointToVec3(e.To),
		Elapsed:    elapsed(e.ElapsedMs),
		Trail:      lineStringToTrail(e.Trail),
	}
}

// PoseSampleToCore converts a GORM PoseSample to a core.PoseSample.
// Malformed rotation or scale columns fall back to identity and unit scale.
func PoseSampleToCore(p model.PoseSample) core.PoseSample {
	pose := core.Pose{
		Position: pointToVec3(p.Position),
		Rotation: core.Identity,
		Scale:    core.One,
	}
	if r, ok := jsonToFloats(p.Rotation, 4); ok {
		pose.Rotation = core.Quat{X: r[0], Y: r[1], Z: r[2], W: r[3]}
	}
	if s, ok := jsonToFloats(p.Scale, 3); ok {
		pose.Scale = core.Vec3{X: s[0], Y: s[1], Z: s[2]}
	}
	return core.PoseSample{
		SessionID: p.SessionID,
		Time:      p.Time,
		Tick:      p.Tick,
		Token:     p.Token,
		Pose:      pose,
		Following: p.Following,
		Moving:    p.Moving,
	}
}
