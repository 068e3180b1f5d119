// internal/storage/storage_test.go
package storage_test

import (
	"testing"

	"github.com/MiaMao0615/AR-Accompanied/internal/engine"
	"github.com/MiaMao0615/AR-Accompanied/internal/storage"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
	"github.com/stretchr/testify/assert"
)

// Every backend can be handed to the engine as its recorder.
var _ engine.Recorder = (storage.Backend)(nil)

func TestUploadMetadataFields(t *testing.T) {
	meta := core.UploadMetadata{
		SessionName: "lobby demo",
		Duration:    3600.5,
		Tag:         "demo",
	}

	assert.Equal(t, "lobby demo", meta.SessionName)
	assert.Equal(t, 3600.5, meta.Duration)
	assert.Equal(t, "demo", meta.Tag)
}
