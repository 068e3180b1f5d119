package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MiaMao0615/AR-Accompanied/internal/anchor"
	"github.com/MiaMao0615/AR-Accompanied/internal/clock"
	"github.com/MiaMao0615/AR-Accompanied/internal/schedule"
	"github.com/MiaMao0615/AR-Accompanied/internal/session"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

// DefaultInterval is how often the status line is rewritten.
const DefaultInterval = time.Second

// Engine is the read-only view of the presence loop used by the monitor.
type Engine interface {
	Status() core.Status
	Pending() int
	TickCount() uint64
}

// QueueReporter reports storage write queue lengths per table.
type QueueReporter interface {
	QueueLengths() map[string]int
}

// PerformanceRecorder receives one performance sample per interval.
type PerformanceRecorder interface {
	RecordPerformance(t time.Time, pending int, tickCount uint64, queues map[string]int) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Engine      Engine
	Session     *session.Context
	Queues      QueueReporter       // optional
	Performance PerformanceRecorder // optional
	Clock       clock.Clock
	Logger      *slog.Logger
	StatusPath  string
	Interval    time.Duration
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
	last      string
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// LastLine returns the most recently written status line.
func (s *Service) LastLine() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// FormatStatus renders the status line "HH:MM - <state>".
func FormatStatus(st core.Status) string {
	anchorID := st.AnchorID
	if anchorID == "" || anchorID == anchor.NoSpot {
		anchorID = "no anchor"
	}
	verdict := "waiting"
	if st.Matched {
		verdict = "matched"
	}
	motion := "idle"
	switch {
	case st.Moving:
		motion = "moving"
	case st.Following:
		motion = "following"
	}
	return fmt.Sprintf("%s - %s (%s, %s)", schedule.FormatHour(st.Hour), anchorID, verdict, motion)
}

// WriteStatus renders the current status once. It writes the status file
// when a path is set and records a performance sample when a recorder is set.
func (s *Service) WriteStatus() error {
	st := s.deps.Engine.Status()
	line := FormatStatus(st)

	s.mu.Lock()
	s.last = line
	s.mu.Unlock()

	if s.deps.StatusPath != "" {
		if err := os.WriteFile(s.deps.StatusPath, []byte(line+"\n"), 0644); err != nil {
			return fmt.Errorf("writing status file: %w", err)
		}
	}

	if s.deps.Performance != nil && (s.deps.Session == nil || s.deps.Session.Active()) {
		var queues map[string]int
		if s.deps.Queues != nil {
			queues = s.deps.Queues.QueueLengths()
		}
		err := s.deps.Performance.RecordPerformance(s.deps.Clock.Now(), s.deps.Engine.Pending(), s.deps.Engine.TickCount(), queues)
		if err != nil {
			return fmt.Errorf("recording performance: %w", err)
		}
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if s.deps.Engine == nil {
		s.mu.Unlock()
		return fmt.Errorf("monitor: no engine")
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(done)
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "function", "startStatusMonitor", "path", s.deps.StatusPath)

		ticker := s.deps.Clock.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.WriteStatus(); err != nil {
					logger.Error("Error writing status", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for its goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.isRunning = false
	s.mu.Unlock()
	<-done
}
