package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MiaMao0615/AR-Accompanied/internal/database"
	"github.com/MiaMao0615/AR-Accompanied/internal/model"
	"github.com/MiaMao0615/AR-Accompanied/internal/storage"
	gormstorage "github.com/MiaMao0615/AR-Accompanied/internal/storage/gorm"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Backend = (*Backend)(nil)

func TestEndSession_DumpsJournal(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "presence.db")
	b, err := New(Config{DumpPath: dump, MemoryName: t.Name()}, nil, "", nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	s := &core.Session{Name: "demo", StartTime: time.Now()}
	require.NoError(t, b.StartSession(s))
	require.NoError(t, b.RecordTrackingChange(&core.TrackingChange{AnchorID: "poster", Tracked: true}))
	require.NoError(t, b.EndSession())

	require.FileExists(t, dump)

	fileDB, err := database.GetSqliteDB(dump)
	require.NoError(t, err)
	j, err := gormstorage.LoadJournal(fileDB, s.ID)
	require.NoError(t, err)
	require.Len(t, j.TrackingChanges, 1)
	assert.Equal(t, "poster", j.TrackingChanges[0].AnchorID)
}

func TestEndSession_NoDumpPath(t *testing.T) {
	b, err := New(Config{MemoryName: t.Name()}, nil, "", nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(&core.Session{Name: "demo"}))
	assert.NoError(t, b.EndSession())
}

func TestDumpLoop(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "loop.db")
	b, err := New(Config{DumpPath: dump, DumpInterval: 10 * time.Millisecond, MemoryName: t.Name()}, nil, "", nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(&core.Session{Name: "demo"}))
	require.NoError(t, b.RecordPoseSample(&core.PoseSample{Tick: 1}))

	assert.Eventually(t, func() bool {
		_, err := os.Stat(dump)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	var count int64
	require.NoError(t, b.DB().Model(&model.PoseSample{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
