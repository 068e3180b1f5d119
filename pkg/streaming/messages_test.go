package streaming

import (
	"encoding/json"
	"testing"

	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeSerialization(t *testing.T) {
	payload := StartSessionPayload{Session: &core.Session{ID: 3, Name: "demo"}, Tag: "lab"}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	data, err := json.Marshal(Envelope{Type: TypeStartSession, Payload: raw})
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, TypeStartSession, decoded.Type)

	var sp StartSessionPayload
	require.NoError(t, json.Unmarshal(decoded.Payload, &sp))
	assert.Equal(t, uint(3), sp.Session.ID)
	assert.Equal(t, "lab", sp.Tag)
}

func TestRequiresAck(t *testing.T) {
	assert.True(t, RequiresAck(TypeStartSession))
	assert.True(t, RequiresAck(TypeEndSession))
	assert.False(t, RequiresAck(TypePoseSample))
	assert.False(t, RequiresAck(TypeStatus))
}
