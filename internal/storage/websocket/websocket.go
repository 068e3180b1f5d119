package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
	"github.com/MiaMao0615/AR-Accompanied/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL          string
	Secret       string
	Tag          string
	WriteTimeout time.Duration
}

// Backend streams the session journal over WebSocket to a live viewer.
// It implements storage.Backend but not storage.Uploadable.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger, cfg.WriteTimeout),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope pushes a fire-and-forget message to the write loop.
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartSession sends the session and waits for the server ack. The
// session keeps the ID it was given; the stream has no ID authority.
func (b *Backend) StartSession(s *core.Session) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: s, Tag: b.cfg.Tag})
	if err != nil {
		return err
	}

	b.conn.mu.Lock()
	b.conn.cachedStartMsg = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for the server ack.
func (b *Backend) EndSession() error {
	data, err := marshalEnvelope(streaming.TypeEndSession, nil)
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)

	b.conn.mu.Lock()
	b.conn.cachedStartMsg = nil
	b.conn.mu.Unlock()

	return err
}

func (b *Backend) RecordTrackingChange(c *core.TrackingChange) error {
	return b.sendEnvelope(streaming.TypeTrackingChange, c)
}

func (b *Backend) RecordMatchTransition(m *core.MatchTransition) error {
	return b.sendEnvelope(streaming.TypeMatchTransition, m)
}

func (b *Backend) RecordMotionEvent(e *core.MotionEvent) error {
	return b.sendEnvelope(streaming.TypeMotionEvent, e)
}

func (b *Backend) RecordPoseSample(p *core.PoseSample) error {
	return b.sendEnvelope(streaming.TypePoseSample, p)
}

// PublishStatus forwards an engine status snapshot to the viewer.
func (b *Backend) PublishStatus(s core.Status) error {
	return b.sendEnvelope(streaming.TypeStatus, s)
}
