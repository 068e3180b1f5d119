// internal/storage/storage.go
package storage

import "github.com/MiaMao0615/AR-Accompanied/pkg/core"

// Backend is the interface all session journal implementations must satisfy.
// Its Record methods match engine.Recorder so a backend can be handed to
// the engine directly.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management (StartSession assigns ID to the passed pointer)
	StartSession(s *core.Session) error
	EndSession() error

	// Journal recording
	RecordTrackingChange(c *core.TrackingChange) error
	RecordMatchTransition(m *core.MatchTransition) error
	RecordMotionEvent(e *core.MotionEvent) error
	RecordPoseSample(p *core.PoseSample) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to the web frontend.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}
