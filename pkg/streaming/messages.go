// Package streaming defines the wire messages of the live journal stream.
package streaming

import (
	"encoding/json"

	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession    = "start_session"
	TypeEndSession      = "end_session"
	TypeTrackingChange  = "tracking_change"
	TypeMatchTransition = "match_transition"
	TypeMotionEvent     = "motion_event"
	TypePoseSample      = "pose_sample"
	TypeStatus          = "status"
	TypeAck             = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload carries the session being recorded.
type StartSessionPayload struct {
	Session *core.Session `json:"session"`
	Tag     string        `json:"tag,omitempty"`
}

// RequiresAck reports whether the sender waits for the server to confirm
// messages of this type.
func RequiresAck(msgType string) bool {
	return msgType == TypeStartSession || msgType == TypeEndSession
}
