package schedule

import (
	"log/slog"
	"math"

	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

const degenerateEpsilon = 1e-6

// Record is one configured schedule entry with its optional motion tuning.
// Unset tuning fields fall back to the motion defaults.
type Record struct {
	ID               string   `json:"id" mapstructure:"id"`
	StartTime        string   `json:"startTime" mapstructure:"startTime"`
	EndTime          string   `json:"endTime" mapstructure:"endTime"`
	MoveState        string   `json:"moveState" mapstructure:"moveState"`
	ArriveState      string   `json:"arriveState" mapstructure:"arriveState"`
	MoveSpeed        *float64 `json:"moveSpeed,omitempty" mapstructure:"moveSpeed"`
	ArriveThreshold  *float64 `json:"arriveThreshold,omitempty" mapstructure:"arriveThreshold"`
	RotateSpeed      *float64 `json:"rotateSpeed,omitempty" mapstructure:"rotateSpeed"`
	SmoothStop       *bool    `json:"smoothStop,omitempty" mapstructure:"smoothStop"`
	ArriveOnBackward *bool    `json:"arriveOnBackward,omitempty" mapstructure:"arriveOnBackward"`
}

// Table resolves hours to schedule ids. It is immutable once built.
type Table struct {
	slices  []core.TimeSlice
	records map[string]Record
}

// NewTable builds the slice table from records in declaration order.
// Records with an empty id or an unparsable time are dropped with a warning.
func NewTable(records []Record, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Table{records: make(map[string]Record, len(records))}
	for i, r := range records {
		if r.ID == "" {
			logger.Warn("dropping schedule slice without id", "index", i)
			continue
		}
		start, err := ParseHour(r.StartTime)
		if err != nil {
			logger.Warn("dropping schedule slice", "id", r.ID, "field", "startTime", "error", err)
			continue
		}
		end, err := ParseHour(r.EndTime)
		if err != nil {
			logger.Warn("dropping schedule slice", "id", r.ID, "field", "endTime", "error", err)
			continue
		}
		t.slices = append(t.slices, core.TimeSlice{ID: r.ID, StartHour: start, EndHour: end})
		if _, ok := t.records[r.ID]; !ok {
			t.records[r.ID] = r
		}
	}
	return t
}

// FromSlices builds a table directly from already-normalized slices.
func FromSlices(slices ...core.TimeSlice) *Table {
	t := &Table{records: make(map[string]Record)}
	for _, s := range slices {
		s.StartHour = Normalize(s.StartHour)
		s.EndHour = Normalize(s.EndHour)
		t.slices = append(t.slices, s)
	}
	return t
}

// Slices returns the valid slices in evaluation order.
func (t *Table) Slices() []core.TimeSlice { return append([]core.TimeSlice(nil), t.slices...) }

// Resolve returns the first declared slice containing hour.
func (t *Table) Resolve(hour float64) (string, bool) {
	if math.IsNaN(hour) || math.IsInf(hour, 0) {
		return "", false
	}
	h := Normalize(hour)
	for _, s := range t.slices {
		if Contains(s, h) {
			return s.ID, true
		}
	}
	return "", false
}

// Contains reports whether the normalized hour h falls inside s.
func Contains(s core.TimeSlice, h float64) bool {
	switch {
	case math.Abs(s.StartHour-s.EndHour) < degenerateEpsilon:
		return true
	case s.StartHour < s.EndHour:
		return h >= s.StartHour && h < s.EndHour
	default:
		return h >= s.StartHour || h < s.EndHour
	}
}

// Record returns the record declared for id.
func (t *Table) Record(id string) (Record, bool) {
	r, ok := t.records[id]
	return r, ok
}

// Profile returns the motion profile of id over defaults.
func (t *Table) Profile(id string, defaults core.MotionProfile) core.MotionProfile {
	r, ok := t.records[id]
	if !ok {
		return defaults
	}
	p := defaults
	if r.MoveState != "" {
		p.MoveState = r.MoveState
	}
	if r.ArriveState != "" {
		p.ArriveState = r.ArriveState
	}
	if r.MoveSpeed != nil && *r.MoveSpeed > 0 {
		p.MoveSpeed = *r.MoveSpeed
	}
	if r.ArriveThreshold != nil && *r.ArriveThreshold > 0 {
		p.ArriveThreshold = *r.ArriveThreshold
	}
	if r.RotateSpeed != nil && *r.RotateSpeed > 0 {
		p.RotateSpeed = *r.RotateSpeed
	}
	if r.SmoothStop != nil {
		p.SmoothStop = *r.SmoothStop
	}
	if r.ArriveOnBackward != nil {
		p.ArriveOnBackward = *r.ArriveOnBackward
	}
	return p
}
