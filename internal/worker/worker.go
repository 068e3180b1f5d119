package worker

import (
	"log/slog"

	"github.com/MiaMao0615/AR-Accompanied/internal/parser"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

// Engine is the input surface of the presence loop. Every method except
// the read-only ones only enqueues.
type Engine interface {
	NotifyTrackingStatus(anchorID string, tier core.ConfidenceTier) error
	NotifyTrackingChanged(anchorID string) error
	NotifyScheduleTick() error
	UpdateAnchorPose(anchorID string, pose core.Pose) error
	SetActiveSpot(anchorID, spotID string) error
	CycleNextSpot(anchorID string) error
	CurrentAnchorID() string
	Status() core.Status
}

// MetricWriter accepts free-form metric lines, e.g. the influx backend.
type MetricWriter interface {
	WriteMetric(args []string) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Engine        Engine
	ParserService parser.Service
	Metrics       MetricWriter // optional, enables :METRIC:
	Logger        *slog.Logger
}

// Manager turns dispatched commands into engine inputs.
type Manager struct {
	deps Dependencies
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.ParserService == nil {
		deps.ParserService = parser.NewParser(deps.Logger)
	}
	return &Manager{deps: deps}
}
