package gormstorage

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/MiaMao0615/AR-Accompanied/internal/database"
	"github.com/MiaMao0615/AR-Accompanied/internal/geo"
	"github.com/MiaMao0615/AR-Accompanied/internal/model"
	"github.com/MiaMao0615/AR-Accompanied/internal/queue"
	"github.com/MiaMao0615/AR-Accompanied/internal/storage"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.GetSqliteDB(database.NamedMemoryDSN(t.Name()))
	require.NoError(t, err)

	b := New(Dependencies{
		DB:            db,
		DBLogger:      zerolog.Nop(),
		Site:          geo.NewSite(121.5, 31.2),
		Tag:           "test",
		FlushInterval: time.Hour,
	})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestInit_RequiresDB(t *testing.T) {
	b := New(Dependencies{})
	assert.Error(t, b.Init())
	assert.NoError(t, b.Close())
}

func TestNoDB_IsInert(t *testing.T) {
	b := New(Dependencies{})
	s := &core.Session{Name: "x"}
	assert.NoError(t, b.StartSession(s))
	assert.Zero(t, s.ID)
	assert.NoError(t, b.EndSession())
}

func TestStartSession_AssignsID(t *testing.T) {
	b := newTestBackend(t)

	s := &core.Session{Name: "demo", StartTime: time.Now(), Latitude: 31.2, Longitude: 121.5}
	require.NoError(t, b.StartSession(s))
	assert.NotZero(t, s.ID)

	var row model.Session
	require.NoError(t, b.DB().First(&row, s.ID).Error)
	assert.Equal(t, "demo", row.Name)
	assert.Equal(t, "test", row.Tag)
	assert.Nil(t, row.EndTime)
}

func TestEndSession_WithoutStart(t *testing.T) {
	b := newTestBackend(t)
	assert.ErrorIs(t, b.EndSession(), ErrNoSession)
}

func TestRecord_QueuesUntilFlush(t *testing.T) {
	b := newTestBackend(t)
	s := &core.Session{Name: "demo", StartTime: time.Now()}
	require.NoError(t, b.StartSession(s))

	require.NoError(t, b.RecordTrackingChange(&core.TrackingChange{AnchorID: "poster", Tracked: true}))
	require.NoError(t, b.RecordMatchTransition(&core.MatchTransition{Cell: core.CellNoMatchToMatch}))
	require.NoError(t, b.RecordMotionEvent(&core.MotionEvent{
		Kind:  core.MotionArrived,
		From:  core.Vec3{Z: -5},
		To:    core.Vec3{X: 1},
		Trail: []core.Vec3{{Z: -5}, {X: 1}},
	}))
	require.NoError(t, b.RecordPoseSample(&core.PoseSample{Pose: core.NewPose(core.Vec3{X: 1})}))

	lens := b.QueueLengths()
	assert.Equal(t, 1, lens["tracking_changes"])
	assert.Equal(t, 1, lens["match_transitions"])
	assert.Equal(t, 1, lens["motion_events"])
	assert.Equal(t, 1, lens["pose_samples"])

	b.Flush()

	for table, n := range b.QueueLengths() {
		assert.Zero(t, n, table)
	}

	var changes []model.TrackingChange
	require.NoError(t, b.DB().Find(&changes).Error)
	require.Len(t, changes, 1)
	assert.Equal(t, s.ID, changes[0].SessionID)
	assert.Equal(t, "poster", changes[0].AnchorID)

	var events []model.MotionEvent
	require.NoError(t, b.DB().Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, s.ID, events[0].SessionID)
	assert.InDelta(t, 5.0990195, events[0].TrailLen, 1e-6)
}

func TestEndSession_FlushesAndStampsEnd(t *testing.T) {
	b := newTestBackend(t)
	s := &core.Session{Name: "demo", StartTime: time.Now()}
	require.NoError(t, b.StartSession(s))
	require.NoError(t, b.RecordPoseSample(&core.PoseSample{Tick: 3}))

	require.NoError(t, b.EndSession())

	var samples []model.PoseSample
	require.NoError(t, b.DB().Where("session_id = ?", s.ID).Find(&samples).Error)
	require.Len(t, samples, 1)
	assert.Equal(t, uint64(3), samples[0].Tick)

	var row model.Session
	require.NoError(t, b.DB().First(&row, s.ID).Error)
	assert.NotNil(t, row.EndTime)
}

func TestWriterLoop_FlushesPeriodically(t *testing.T) {
	db, err := database.GetSqliteDB(database.NamedMemoryDSN(t.Name()))
	require.NoError(t, err)

	b := New(Dependencies{DB: db, DBLogger: zerolog.Nop(), FlushInterval: 10 * time.Millisecond})
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(&core.Session{Name: "loop"}))
	require.NoError(t, b.RecordTrackingChange(&core.TrackingChange{AnchorID: "a"}))

	assert.Eventually(t, func() bool {
		return b.QueueLengths()["tracking_changes"] == 0
	}, time.Second, 10*time.Millisecond)
}

func TestLoadJournal(t *testing.T) {
	b := newTestBackend(t)
	s := &core.Session{Name: "demo", StartTime: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, b.StartSession(s))

	require.NoError(t, b.RecordTrackingChange(&core.TrackingChange{AnchorID: "poster", Tick: 1}))
	require.NoError(t, b.RecordMatchTransition(&core.MatchTransition{Tick: 2, Action: core.ActionAlignAndForward}))
	require.NoError(t, b.RecordMotionEvent(&core.MotionEvent{Tick: 3, Kind: core.MotionAlign}))
	require.NoError(t, b.RecordPoseSample(&core.PoseSample{Tick: 4, Pose: core.NewPose(core.Vec3{Y: 1})}))
	require.NoError(t, b.EndSession())

	j, err := LoadJournal(b.DB(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "demo", j.Session.Name)
	assert.False(t, j.Session.EndTime.IsZero())
	require.Len(t, j.TrackingChanges, 1)
	require.Len(t, j.Transitions, 1)
	require.Len(t, j.MotionEvents, 1)
	require.Len(t, j.PoseSamples, 1)
	assert.Equal(t, core.Vec3{Y: 1}, j.PoseSamples[0].Pose.Position)

	_, err = LoadJournal(b.DB(), s.ID+100)
	assert.Error(t, err)
}

func TestLatestSessionID(t *testing.T) {
	b := newTestBackend(t)

	_, err := LatestSessionID(b.DB())
	assert.Error(t, err)

	first := &core.Session{Name: "a"}
	second := &core.Session{Name: "b"}
	require.NoError(t, b.StartSession(first))
	require.NoError(t, b.StartSession(second))

	id, err := LatestSessionID(b.DB())
	require.NoError(t, err)
	assert.Equal(t, second.ID, id)
}

func TestRequeue_LogsRejectedRows(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	q := queue.New[model.PoseSample](1)
	requeue(q, []model.PoseSample{{Tick: 1}}, "pose samples", log)
	assert.Equal(t, 1, q.Len())
	assert.Empty(t, buf.String())

	requeue(q, []model.PoseSample{{Tick: 2}, {Tick: 3}}, "pose samples", log)
	assert.Equal(t, 1, q.Len())
	assert.Contains(t, buf.String(), "Dropping rows")
	assert.Contains(t, buf.String(), "count=2")
	assert.Contains(t, buf.String(), `table="pose samples"`)
}
