package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/MiaMao0615/AR-Accompanied/internal/anchor"
	"github.com/MiaMao0615/AR-Accompanied/internal/channel"
	"github.com/MiaMao0615/AR-Accompanied/internal/clock"
	"github.com/MiaMao0615/AR-Accompanied/internal/logging"
	"github.com/MiaMao0615/AR-Accompanied/internal/match"
	"github.com/MiaMao0615/AR-Accompanied/internal/queue"
	"github.com/MiaMao0615/AR-Accompanied/internal/schedule"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const step = 16 * time.Millisecond

type memRecorder struct {
	mu          sync.Mutex
	tracking    []core.TrackingChange
	transitions []core.MatchTransition
	motions     []core.MotionEvent
	samples     []core.PoseSample
}

func (r *memRecorder) RecordTrackingChange(c *core.TrackingChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracking = append(r.tracking, *c)
	return nil
}

func (r *memRecorder) RecordMatchTransition(t *core.MatchTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, *t)
	return nil
}

func (r *memRecorder) RecordMotionEvent(e *core.MotionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.motions = append(r.motions, *e)
	return nil
}

func (r *memRecorder) RecordPoseSample(s *core.PoseSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, *s)
	return nil
}

func (r *memRecorder) motionKinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.motions))
	for _, m := range r.motions {
		out = append(out, m.Kind)
	}
	return out
}

func (r *memRecorder) trackedFlags() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, 0, len(r.tracking))
	for _, c := range r.tracking {
		out = append(out, c.Tracked)
	}
	return out
}

type harness struct {
	clock  *clock.FakeClock
	hour   float64
	rec    *memRecorder
	engine *Engine
}

func (h *harness) tick(n int) {
	for i := 0; i < n; i++ {
		h.clock.Advance(step)
		h.engine.Tick(step)
	}
}

var fallbackPose = core.Pose{
	Position: core.Vec3{Z: -5},
	Rotation: core.Identity,
	Scale:    core.One,
}

func anchorA() anchor.Config {
	return anchor.Config{
		Name: "A",
		Pairs: []anchor.PairConfig{
			{
				SpotID: "A",
				Start:  core.NewPose(core.Vec3{}),
				Target: core.NewPose(core.Vec3{X: 1}),
			},
			{
				SpotID: "B",
				Start:  core.NewPose(core.Vec3{Z: 1}),
				Target: core.NewPose(core.Vec3{X: 1, Z: 1}),
			},
		},
	}
}

func newHarness(t *testing.T, mutate func(*Dependencies)) *harness {
	t.Helper()
	h := &harness{
		clock: clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		hour:  9,
		rec:   &memRecorder{},
	}
	deps := Dependencies{
		Clock: h.clock,
		Hours: schedule.HourFunc(func() float64 { return h.hour }),
		Schedule: schedule.FromSlices(
			core.TimeSlice{ID: "A", StartHour: 8, EndHour: 12},
			core.TimeSlice{ID: "B", StartHour: 12, EndHour: 16},
		),
		Tracking:         anchor.DebounceOptions{LossGrace: 3 * time.Second},
		Anchors:          []anchor.Config{anchorA()},
		Fallback:         core.StaticTarget(fallbackPose),
		Recorder:         h.rec,
		ScheduleInterval: time.Second,
	}
	if mutate != nil {
		mutate(&deps)
	}
	e, err := New(deps)
	require.NoError(t, err)
	h.engine = e
	return h
}

func TestNew_SpawnsAtFallback(t *testing.T) {
	h := newHarness(t, nil)

	assert.Equal(t, core.Pose{}, h.engine.Status().Pose, "status is published on the first tick")
	spawned := h.engine.tracker.Pose()
	assert.Equal(t, fallbackPose.Position, spawned.Position)
	assert.Equal(t, core.Vec3{X: 0.5, Y: 0.5, Z: 0.5}, spawned.Scale)

	// nothing tracked: the first schedule poll forces the fallback pose
	h.tick(1)
	st := h.engine.Status()
	assert.Equal(t, fallbackPose.Position, st.Pose.Position)
	assert.Equal(t, core.One, st.Pose.Scale)
	assert.False(t, st.Matched)
	assert.Equal(t, match.NoAnchor, st.AnchorID)
	require.Len(t, h.rec.transitions, 1)
	assert.Equal(t, core.CellNoMatchToNoMatch, h.rec.transitions[0].Cell)
}

func TestNew_DuplicateAnchor(t *testing.T) {
	_, err := New(Dependencies{
		Clock:   clock.Fake(time.Now()),
		Anchors: []anchor.Config{anchorA(), anchorA()},
	})
	require.Error(t, err)
}

func TestEngine_RejectsUnknownInputs(t *testing.T) {
	h := newHarness(t, nil)

	err := h.engine.NotifyTrackingStatus("nope", core.TierTracked)
	assert.ErrorIs(t, err, anchor.ErrUnknownAnchor)

	err = h.engine.UpdateAnchorPose("nope", core.NewPose(core.Vec3{}))
	assert.ErrorIs(t, err, anchor.ErrUnknownAnchor)

	err = h.engine.SetActiveSpot("A", "Z")
	assert.ErrorIs(t, err, anchor.ErrUnknownSpot)

	err = h.engine.CycleNextSpot("nope")
	assert.ErrorIs(t, err, anchor.ErrUnknownAnchor)

	assert.Equal(t, 0, h.engine.Pending())
}

func TestEngine_InboxFull(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) { d.InboxSize = 1 })

	require.NoError(t, h.engine.NotifyScheduleTick())
	err := h.engine.NotifyScheduleTick()
	assert.ErrorIs(t, err, queue.ErrFull)

	h.tick(1)
	assert.NoError(t, h.engine.NotifyScheduleTick())
}

func TestEngine_ForwardThenReverse(t *testing.T) {
	h := newHarness(t, nil)
	e := h.engine

	require.NoError(t, e.NotifyTrackingStatus("A", core.TierTracked))
	h.tick(1)

	st := e.Status()
	assert.True(t, st.Matched)
	assert.Equal(t, "A", st.AnchorID)
	assert.Equal(t, "A", e.CurrentAnchorID())
	assert.Equal(t, "A", st.ScheduleID)
	assert.True(t, st.Moving)
	require.NotEmpty(t, h.rec.transitions)
	assert.Equal(t, core.CellNoMatchToMatch, h.rec.transitions[0].Cell)
	assert.Equal(t, core.ActionAlignAndForward, h.rec.transitions[0].Action)
	assert.Equal(t, []bool{true}, h.rec.trackedFlags())

	h.tick(200)
	st = e.Status()
	assert.False(t, st.Moving)
	assert.True(t, st.Following)
	assert.InDelta(t, 1, st.Pose.Position.X, 0.07)
	assert.Contains(t, h.rec.motionKinds(), core.MotionArrived)
	assert.Contains(t, h.rec.motionKinds(), core.MotionFollow)

	// schedule moves to B while the anchor still shows spot A
	h.hour = 13
	require.NoError(t, e.NotifyScheduleTick())
	h.tick(1)

	st = e.Status()
	assert.False(t, st.Matched)
	assert.False(t, st.Following, "follow stops before reverse motion")
	assert.True(t, st.Moving)
	last := h.rec.transitions[len(h.rec.transitions)-1]
	assert.Equal(t, core.CellMatchToNoMatch, last.Cell)
	assert.Equal(t, core.ActionReverseToFallback, last.Action)

	h.tick(200)
	st = e.Status()
	assert.False(t, st.Moving)
	assert.False(t, st.Following)
	assert.True(t, st.Pose.Position.ApproxEqual(fallbackPose.Position, 1e-9))
	assert.Equal(t, core.One, st.Pose.Scale)
	assert.Contains(t, h.rec.motionKinds(), core.MotionFallback)
}

func TestEngine_SchedulePollOnlyOnChange(t *testing.T) {
	h := newHarness(t, nil)

	h.tick(int(5 * time.Second / step))
	assert.Len(t, h.rec.transitions, 1, "unchanged schedule id does not re-evaluate")

	h.hour = 12.5
	h.tick(int(time.Second/step) + 1)
	require.Len(t, h.rec.transitions, 2)
	assert.Equal(t, "B", h.rec.transitions[1].ScheduleID)
	assert.Equal(t, "schedule", h.rec.transitions[1].Reason)
}

func TestEngine_SpotSwitchRematches(t *testing.T) {
	h := newHarness(t, nil)
	e := h.engine
	h.hour = 13

	require.NoError(t, e.NotifyTrackingStatus("A", core.TierTracked))
	h.tick(1)
	assert.False(t, e.Status().Matched)

	require.NoError(t, e.SetActiveSpot("A", "b"))
	h.tick(1)
	st := e.Status()
	assert.True(t, st.Matched)
	assert.Equal(t, "B", st.AnchorID)

	require.NoError(t, e.CycleNextSpot("A"))
	h.tick(1)
	st = e.Status()
	assert.False(t, st.Matched)
	assert.Equal(t, "A", st.AnchorID)
}

func TestEngine_LossGraceBoundary(t *testing.T) {
	tests := []struct {
		name     string
		recovery time.Duration
		want     []bool
	}{
		{name: "before deadline", recovery: 3*time.Second - time.Millisecond, want: []bool{true}},
		{name: "at deadline", recovery: 3 * time.Second, want: []bool{true, false, true}},
		{name: "after deadline", recovery: 3*time.Second + time.Millisecond, want: []bool{true, false, true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(d *Dependencies) { d.ScheduleInterval = 0 })
			e := h.engine

			require.NoError(t, e.NotifyTrackingStatus("A", core.TierTracked))
			h.tick(1)
			require.NoError(t, e.NotifyTrackingStatus("A", core.TierNoPose))
			e.Tick(0)

			// the recovery is queued before the loop gets to run again
			h.clock.Advance(tt.recovery)
			require.NoError(t, e.NotifyTrackingStatus("A", core.TierTracked))
			e.Tick(tt.recovery)

			assert.Equal(t, tt.want, h.rec.trackedFlags())
		})
	}
}

func TestEngine_LossExpiresWithoutInput(t *testing.T) {
	h := newHarness(t, nil)
	e := h.engine

	require.NoError(t, e.NotifyTrackingStatus("A", core.TierTracked))
	h.tick(1)
	require.NoError(t, e.NotifyTrackingStatus("A", core.TierLimited))
	h.tick(1)
	assert.True(t, e.Status().Matched, "pending loss still counts as tracked")

	h.tick(int(3*time.Second/step) + 1)
	st := e.Status()
	assert.False(t, st.Matched)
	assert.Equal(t, match.NoAnchor, st.AnchorID)
	assert.Equal(t, []bool{true, false}, h.rec.trackedFlags())

	last := h.rec.tracking[len(h.rec.tracking)-1]
	assert.Equal(t, "A", last.AnchorID)
	assert.Equal(t, anchor.NoSpot, last.SpotID)
}

func TestEngine_AnchorPoseMovesPair(t *testing.T) {
	h := newHarness(t, nil)
	e := h.engine

	moved := core.NewPose(core.Vec3{X: 10})
	require.NoError(t, e.UpdateAnchorPose("A", moved))
	require.NoError(t, e.NotifyTrackingStatus("A", core.TierTracked))
	h.tick(1)

	// aligned to the moved start point, then one motion step
	assert.InDelta(t, 10, e.Status().Pose.Position.X, 0.1)
}

func TestEngine_RejectsNonFiniteAnchorPose(t *testing.T) {
	h := newHarness(t, nil)
	e := h.engine
	nan, inf := math.NaN(), math.Inf(1)

	bad := map[string]core.Pose{
		"position": {Position: core.Vec3{X: nan}, Rotation: core.Identity, Scale: core.One},
		"rotation": {Rotation: core.Quat{Y: inf, W: 1}, Scale: core.One},
		"scale":    {Rotation: core.Identity, Scale: core.Vec3{X: 1, Y: -inf, Z: 1}},
	}
	for name, pose := range bad {
		err := e.UpdateAnchorPose("A", pose)
		assert.ErrorIs(t, err, core.ErrNonFinite, name)
	}
	assert.Equal(t, 0, e.Pending(), "rejected poses are never queued")

	// the anchor keeps its last good pose and the run still arrives
	require.NoError(t, e.NotifyTrackingStatus("A", core.TierTracked))
	h.tick(200)
	st := e.Status()
	assert.True(t, st.Pose.IsFinite())
	assert.True(t, st.Following)
	assert.InDelta(t, 1, st.Pose.Position.X, 0.1)
	assert.NotContains(t, h.rec.motionKinds(), core.MotionTimeout)
}

func TestEngine_LogAttrsInjectTickAndToken(t *testing.T) {
	var buf bytes.Buffer
	var e *Engine
	m := logging.NewSlogManager()
	m.Setup(logging.Options{File: &buf, Level: "info", Context: func() []slog.Attr {
		if e == nil {
			return nil
		}
		return e.LogAttrs()
	}})

	h := newHarness(t, func(d *Dependencies) { d.Logger = m.Logger() })
	e = h.engine
	require.NoError(t, e.NotifyTrackingStatus("A", core.TierTracked))
	h.tick(3)
	require.NotZero(t, e.Token())

	m.Logger().Info("checkpoint")
	want := fmt.Sprintf("msg=checkpoint tick=%d token=%d", e.TickCount(), e.Token())
	assert.Contains(t, buf.String(), want)
	assert.Contains(t, buf.String(), "msg=\"match transition\"")
}

func TestEngine_PoseSampling(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) { d.SampleInterval = 100 * time.Millisecond })

	h.tick(25) // 400ms
	h.rec.mu.Lock()
	n := len(h.rec.samples)
	h.rec.mu.Unlock()
	assert.Equal(t, 4, n)
}

func TestEngine_PublishesStatus(t *testing.T) {
	fan := channel.NewFanout[core.Status]()
	sub := fan.Subscribe(4)
	h := newHarness(t, func(d *Dependencies) { d.Status = fan })

	h.tick(1)
	select {
	case st := <-sub.Receive():
		assert.Equal(t, uint64(1), st.Tick)
	default:
		t.Fatal("expected status")
	}
}

func TestEngine_Run(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	require.Eventually(t, func() bool { return h.clock.PendingTickers() == 1 }, time.Second, time.Millisecond)
	for i := 0; i < 3; i++ {
		h.clock.Advance(DefaultTickRate)
		require.Eventually(t, func() bool { return h.engine.TickCount() == uint64(i+1) }, time.Second, time.Millisecond)
	}
	assert.Error(t, h.engine.RegisterAnchor(anchor.Config{Name: "late"}))

	cancel()
	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))
}
