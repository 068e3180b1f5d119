// internal/storage/memory/memory.go
package memory

import (
	"sync"
	"time"

	"github.com/MiaMao0615/AR-Accompanied/internal/config"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

// Backend keeps the session journal in memory and exports it to JSON
// when the session ends.
type Backend struct {
	cfg     config.MemoryConfig
	tag     string
	now     func() time.Time
	journal *core.Journal

	idCounter      uint
	lastExportPath string
	lastExportMeta core.UploadMetadata
	mu             sync.RWMutex
}

// New creates a new memory backend. tag is copied into the export metadata.
func New(cfg config.MemoryConfig, tag string) *Backend {
	return &Backend{
		cfg: cfg,
		tag: tag,
		now: time.Now,
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session, discarding any previous one.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	s.ID = b.idCounter
	b.journal = &core.Journal{Session: *s}
	return nil
}

// EndSession stamps the end time and exports the journal.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.journal == nil {
		return nil
	}
	if b.journal.Session.EndTime.IsZero() {
		b.journal.Session.EndTime = b.now()
	}

	path, err := WriteExport(b.cfg, b.journal)
	if err != nil {
		return err
	}
	b.lastExportPath = path
	b.lastExportMeta = core.UploadMetadata{
		SessionName: b.journal.Session.Name,
		Duration:    b.journal.Session.EndTime.Sub(b.journal.Session.StartTime).Seconds(),
		Tag:         b.tag,
	}
	return nil
}

// Journal returns a copy of the current journal, or nil before StartSession.
func (b *Backend) Journal() *core.Journal {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.journal == nil {
		return nil
	}
	j := *b.journal
	j.TrackingChanges = append([]core.TrackingChange(nil), b.journal.TrackingChanges...)
	j.Transitions = append([]core.MatchTransition(nil), b.journal.Transitions...)
	j.MotionEvents = append([]core.MotionEvent(nil), b.journal.MotionEvents...)
	j.PoseSamples = append([]core.PoseSample(nil), b.journal.PoseSamples...)
	return &j
}

// RecordTrackingChange records a stable tracking transition
func (b *Backend) RecordTrackingChange(c *core.TrackingChange) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.journal == nil {
		return nil
	}
	b.journal.TrackingChanges = append(b.journal.TrackingChanges, *c)
	return nil
}

// RecordMatchTransition records a coordinator evaluation
func (b *Backend) RecordMatchTransition(m *core.MatchTransition) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.journal == nil {
		return nil
	}
	b.journal.Transitions = append(b.journal.Transitions, *m)
	return nil
}

// RecordMotionEvent records a motion lifecycle event
func (b *Backend) RecordMotionEvent(e *core.MotionEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.journal == nil {
		return nil
	}
	ev := *e
	ev.Trail = append([]core.Vec3(nil), e.Trail...)
	b.journal.MotionEvents = append(b.journal.MotionEvents, ev)
	return nil
}

// RecordPoseSample records a character pose sample
func (b *Backend) RecordPoseSample(p *core.PoseSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.journal == nil {
		return nil
	}
	b.journal.PoseSamples = append(b.journal.PoseSamples, *p)
	return nil
}

// GetExportedFilePath returns the path of the last export, or "" if none.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the last export.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportMeta
}
