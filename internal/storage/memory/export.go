// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MiaMao0615/AR-Accompanied/internal/config"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

// FormatVersion is bumped whenever the export layout changes.
const FormatVersion = 1

// SessionExport is the root JSON structure.
// Tracking rows are [offsetMs, anchorId, spotId, tracked, tier].
// Pose rows are [offsetMs, [x,y,z], [x,y,z,w], [x,y,z], token, following, moving].
type SessionExport struct {
	FormatVersion int              `json:"formatVersion"`
	SessionName   string           `json:"sessionName"`
	Version       string           `json:"version"`
	StartTime     time.Time        `json:"startTime"`
	EndTime       time.Time        `json:"endTime"`
	Duration      float64          `json:"duration"`
	Site          *SiteJSON        `json:"site,omitempty"`
	Tracking      [][]any          `json:"tracking"`
	Transitions   []TransitionJSON `json:"transitions"`
	Motion        []MotionJSON     `json:"motion"`
	Poses         [][]any          `json:"poses"`
}

// SiteJSON is the geo-reference of the local frame.
type SiteJSON struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TransitionJSON is one coordinator evaluation.
type TransitionJSON struct {
	OffsetMs   int64   `json:"offsetMs"`
	Tick       uint64  `json:"tick"`
	Reason     string  `json:"reason"`
	Hour       float64 `json:"hour"`
	ScheduleID string  `json:"scheduleId"`
	AnchorID   string  `json:"anchorId"`
	Cell       string  `json:"cell"`
	Action     string  `json:"action"`
}

// MotionJSON is one motion lifecycle event.
type MotionJSON struct {
	OffsetMs   int64       `json:"offsetMs"`
	Token      uint64      `json:"token"`
	Kind       string      `json:"kind"`
	ScheduleID string      `json:"scheduleId,omitempty"`
	Forward    bool        `json:"forward"`
	From       [3]float64  `json:"from"`
	To         [3]float64  `json:"to"`
	ElapsedMs  int64       `json:"elapsedMs"`
	Trail      [][]float64 `json:"trail,omitempty"`
}

func vec(v core.Vec3) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func offsetMs(start, t time.Time) int64 {
	if start.IsZero() {
		return 0
	}
	return t.Sub(start).Milliseconds()
}

// BuildExport converts a journal into its export structure.
func BuildExport(j *core.Journal) SessionExport {
	s := j.Session
	start := s.StartTime
	export := SessionExport{
		FormatVersion: FormatVersion,
		SessionName:   s.Name,
		Version:       s.Version,
		StartTime:     s.StartTime,
		EndTime:       s.EndTime,
		Tracking:      make([][]any, 0, len(j.TrackingChanges)),
		Transitions:   make([]TransitionJSON, 0, len(j.Transitions)),
		Motion:        make([]MotionJSON, 0, len(j.MotionEvents)),
		Poses:         make([][]any, 0, len(j.PoseSamples)),
	}
	if !s.EndTime.IsZero() {
		export.Duration = s.EndTime.Sub(s.StartTime).Seconds()
	}
	if s.Latitude != 0 || s.Longitude != 0 {
		export.Site = &SiteJSON{Latitude: s.Latitude, Longitude: s.Longitude}
	}

	for _, c := range j.TrackingChanges {
		export.Tracking = append(export.Tracking, []any{
			offsetMs(start, c.Time),
			c.AnchorID,
			c.SpotID,
			boolToInt(c.Tracked),
			c.Tier,
		})
	}

	for _, m := range j.Transitions {
		export.Transitions = append(export.Transitions, TransitionJSON{
			OffsetMs:   offsetMs(start, m.Time),
			Tick:       m.Tick,
			Reason:     m.Reason,
			Hour:       m.Hour,
			ScheduleID: m.ScheduleID,
			AnchorID:   m.AnchorID,
			Cell:       m.Cell,
			Action:     m.Action,
		})
	}

	for _, e := range j.MotionEvents {
		mj := MotionJSON{
			OffsetMs:   offsetMs(start, e.Time),
			Token:      e.Token,
			Kind:       e.Kind,
			ScheduleID: e.ScheduleID,
			Forward:    e.Forward,
			From:       vec(e.From),
			To:         vec(e.To),
			ElapsedMs:  e.Elapsed.Milliseconds(),
		}
		for _, p := range e.Trail {
			mj.Trail = append(mj.Trail, []float64{p.X, p.Y, p.Z})
		}
		export.Motion = append(export.Motion, mj)
	}

	for _, p := range j.PoseSamples {
		r := p.Pose.Rotation
		export.Poses = append(export.Poses, []any{
			offsetMs(start, p.Time),
			vec(p.Pose.Position),
			[4]float64{r.X, r.Y, r.Z, r.W},
			vec(p.Pose.Scale),
			p.Token,
			boolToInt(p.Following),
			boolToInt(p.Moving),
		})
	}

	return export
}

// ExportFileName derives the file name of a journal export.
func ExportFileName(s core.Session, compress bool) string {
	name := strings.ReplaceAll(s.Name, " ", "_")
	name = strings.ReplaceAll(name, ":", "_")
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	if name == "" {
		name = "session"
	}
	timestamp := s.StartTime.Format("20060102_150405")

	if compress {
		return fmt.Sprintf("%s_%s.json.gz", name, timestamp)
	}
	return fmt.Sprintf("%s_%s.json", name, timestamp)
}

// WriteExport writes the journal to cfg.OutputDir and returns the file path.
func WriteExport(cfg config.MemoryConfig, j *core.Journal) (string, error) {
	export := BuildExport(j)
	outputPath := filepath.Join(cfg.OutputDir, ExportFileName(j.Session, cfg.CompressOutput))

	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	var err error
	if cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return "", err
	}
	return outputPath, nil
}

func writeJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data SessionExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	encoder := json.NewEncoder(gzWriter)
	if err := encoder.Encode(data); err != nil {
		gzWriter.Close()
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return gzWriter.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
