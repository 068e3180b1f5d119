// Package gormstorage implements the storage.Backend interface on top of
// GORM with internal write queues and a background DB writer goroutine.
// The sqlite and postgres backends wrap it and only differ in how they
// obtain and persist the connection.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MiaMao0615/AR-Accompanied/internal/database"
	"github.com/MiaMao0615/AR-Accompanied/internal/geo"
	"github.com/MiaMao0615/AR-Accompanied/internal/model"
	"github.com/MiaMao0615/AR-Accompanied/internal/model/convert"
	"github.com/MiaMao0615/AR-Accompanied/internal/queue"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// DefaultFlushInterval is how often queued rows are written.
const DefaultFlushInterval = 2 * time.Second

// ErrNoSession is returned by EndSession when no session was started.
var ErrNoSession = errors.New("no session started")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	DBLogger      zerolog.Logger
	Site          *geo.Site
	Tag           string
	FlushInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	TrackingChanges  *queue.Queue[model.TrackingChange]
	MatchTransitions *queue.Queue[model.MatchTransition]
	MotionEvents     *queue.Queue[model.MotionEvent]
	PoseSamples      *queue.Queue[model.PoseSample]
}

func newQueues() *queues {
	return &queues{
		TrackingChanges:  queue.New[model.TrackingChange](0),
		MatchTransitions: queue.New[model.MatchTransition](0),
		MotionEvents:     queue.New[model.MotionEvent](0),
		PoseSamples:      queue.New[model.PoseSample](0),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	queues    *queues
	sessionID atomic.Uint64
	session   *model.Session

	stopChan chan struct{}
	done     sync.WaitGroup
	flushMu  sync.Mutex
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm backend: no database connection")
	}
	if err := database.Setup(b.deps.DB, b.deps.DBLogger); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done.Add(1)
	go b.writerLoop()
	return nil
}

// Close stops the DB writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		b.done.Wait()
		b.stopChan = nil
	}
	if b.deps.DB != nil {
		b.Flush()
	}
	return nil
}

// StartSession inserts the session row and remembers its ID for the writer.
func (b *Backend) StartSession(s *core.Session) error {
	if b.deps.DB == nil {
		return nil
	}

	gormSession := convert.CoreToSession(*s, b.deps.Tag, b.deps.Site)
	gormSession.ID = 0
	if err := b.deps.DB.Create(&gormSession).Error; err != nil {
		return fmt.Errorf("failed to insert new session: %w", err)
	}

	s.ID = gormSession.ID
	b.session = &gormSession
	b.sessionID.Store(uint64(gormSession.ID))
	b.deps.Logger.Info("Session started", "sessionId", s.ID, "name", s.Name)
	return nil
}

// EndSession flushes the queues and stamps the session's end time.
func (b *Backend) EndSession() error {
	if b.deps.DB == nil {
		return nil
	}
	if b.session == nil {
		return ErrNoSession
	}

	b.Flush()

	end := time.Now()
	if err := b.deps.DB.Model(&model.Session{}).
		Where("id = ?", b.session.ID).
		Update("end_time", end).Error; err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	b.session.EndTime = &end
	return nil
}

// RecordTrackingChange converts and queues a tracking change.
func (b *Backend) RecordTrackingChange(c *core.TrackingChange) error {
	return b.queues.TrackingChanges.Push(convert.CoreToTrackingChange(*c))
}

// RecordMatchTransition converts and queues a coordinator transition.
func (b *Backend) RecordMatchTransition(m *core.MatchTransition) error {
	return b.queues.MatchTransitions.Push(convert.CoreToMatchTransition(*m))
}

// RecordMotionEvent converts and queues a motion event.
func (b *Backend) RecordMotionEvent(e *core.MotionEvent) error {
	return b.queues.MotionEvents.Push(convert.CoreToMotionEvent(*e))
}

// RecordPoseSample converts and queues a pose sample.
func (b *Backend) RecordPoseSample(p *core.PoseSample) error {
	return b.queues.PoseSamples.Push(convert.CoreToPoseSample(*p))
}

// QueueLengths reports pending rows per table, for the monitor.
func (b *Backend) QueueLengths() map[string]int {
	return map[string]int{
		"tracking_changes":  b.queues.TrackingChanges.Len(),
		"match_transitions": b.queues.MatchTransitions.Len(),
		"motion_events":     b.queues.MotionEvents.Len(),
		"pose_samples":      b.queues.PoseSamples.Len(),
	}
}

// Flush writes every queue to the database once, stamping the session ID.
func (b *Backend) Flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	sessionID := uint(b.sessionID.Load())
	log := b.deps.Logger

	writeQueue(b.deps.DB, b.queues.TrackingChanges, "tracking changes", log, func(items []model.TrackingChange) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	})
	writeQueue(b.deps.DB, b.queues.MatchTransitions, "match transitions", log, func(items []model.MatchTransition) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	})
	writeQueue(b.deps.DB, b.queues.MotionEvents, "motion events", log, func(items []model.MotionEvent) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	})
	writeQueue(b.deps.DB, b.queues.PoseSamples, "pose samples", log, func(items []model.PoseSample) {
		for i := range items {
			items[i].SessionID = sessionID
		}
	})
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items are pushed back for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger, prepare func([]T)) {
	if q.Empty() {
		return
	}

	items := q.Drain()
	if prepare != nil {
		prepare(items)
	}

	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log.Error("Error writing rows", "table", name, "count", len(items), "error", err)
		tx.Rollback()
		requeue(q, items, name, log)
		return
	}
	if err := tx.Commit().Error; err != nil {
		log.Error("Error committing rows", "table", name, "error", err)
		requeue(q, items, name, log)
	}
}

// requeue pushes unwritten items back for the next cycle.
func requeue[T any](q *queue.Queue[T], items []T, name string, log *slog.Logger) {
	if err := q.Push(items...); err != nil {
		log.Error("Dropping rows, queue rejected requeue", "table", name, "count", len(items), "error", err)
	}
}

func (b *Backend) writerLoop() {
	defer b.done.Done()

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			b.Flush()
			b.deps.DBLogger.Debug().Dur("duration", time.Since(start)).Msg("Flushed journal queues")
		}
	}
}
