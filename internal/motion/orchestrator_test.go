package motion

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/MiaMao0615/AR-Accompanied/internal/character"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dt = 16 * time.Millisecond

type movable struct {
	pose  core.Pose
	alive bool
}

func point(x, y, z float64) *movable {
	return &movable{pose: core.NewPose(core.Vec3{X: x, Y: y, Z: z}), alive: true}
}

func (m *movable) WorldPose() (core.Pose, bool) { return m.pose, m.alive }

type harness struct {
	o        *Orchestrator
	fallback *movable
	played   []string
	events   []core.MotionEvent
	logs     *bytes.Buffer
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{fallback: point(0, 0, -5), logs: &bytes.Buffer{}}
	logger := slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tr := character.NewTracker(h.fallback, core.One, logger)
	require.True(t, tr.EnsureSpawned())

	o, err := New(tr, cfg, Options{
		Animator: AnimatorFunc(func(s string) { h.played = append(h.played, s) }),
		Events:   func(e core.MotionEvent) { h.events = append(h.events, e) },
		Logger:   logger,
	})
	require.NoError(t, err)
	h.o = o
	return h
}

func (h *harness) tickUntilIdle(t *testing.T, max int) int {
	t.Helper()
	for i := 0; i < max; i++ {
		if !h.o.Moving() {
			return i
		}
		h.o.Tick(dt)
	}
	require.False(t, h.o.Moving(), "motion did not finish in %d ticks", max)
	return max
}

func (h *harness) kinds() []string {
	out := make([]string, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.Kind)
	}
	return out
}

func pair(start, target *movable) core.PosePair {
	return core.PosePair{Start: start, Target: target}
}

func TestRunForward_ArrivesThenFollows(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	start, target := point(0, 0, 0), point(1, 0, 0)
	target.pose.Rotation = core.Quat{Y: 0.7071068, W: 0.7071068}.Normalized()
	target.pose.Scale = core.Vec3{X: 0.3, Y: 0.3, Z: 0.3}

	require.True(t, h.o.RunForward("A", pair(start, target)))
	assert.True(t, h.o.Moving())
	assert.Equal(t, core.Vec3{}, h.o.Tracker().Pose().Position)

	h.tickUntilIdle(t, 500)

	assert.True(t, h.o.Following())
	got := h.o.Tracker().Pose()
	assert.Equal(t, target.pose.Position, got.Position)
	assert.Equal(t, target.pose.Rotation, got.Rotation)
	assert.Equal(t, target.pose.Scale, got.Scale)
	assert.Equal(t, []string{"drawfwalk", "run"}, h.played)
	assert.Equal(t, []string{core.MotionForward, core.MotionArrived, core.MotionFollow}, h.kinds())

	// follow copies the live target every tick
	target.pose.Position = core.Vec3{X: 2, Y: 1}
	h.o.Tick(dt)
	assert.Equal(t, core.Vec3{X: 2, Y: 1}, h.o.Tracker().Pose().Position)
}

func TestRunForward_FollowWithoutRotationAndScale(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FollowCopyRotation = false
	cfg.FollowCopyScale = false
	h := newHarness(t, cfg)
	start, target := point(0, 0, 0), point(0, 0, 0.01)
	target.pose.Scale = core.Vec3{X: 9, Y: 9, Z: 9}

	h.o.RunForward("A", pair(start, target))
	h.o.Tick(dt)

	require.True(t, h.o.Following())
	assert.Equal(t, core.One, h.o.Tracker().Pose().Scale)
}

func TestRunReverse_ThenFallback(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	start, target := point(0, 0, 0), point(1.5, 0, 0)

	require.True(t, h.o.RunReverseThenFallback("A", pair(start, target)))
	assert.Equal(t, target.pose.Position, h.o.Tracker().Pose().Position)

	h.tickUntilIdle(t, 500)

	assert.False(t, h.o.Following())
	assert.Equal(t, h.fallback.pose, h.o.Tracker().Pose())
	assert.Equal(t, []string{"drawfwalk"}, h.played, "arrive state only plays on reverse when configured")
	assert.Equal(t, []string{core.MotionReverse, core.MotionArrived, core.MotionFallback}, h.kinds())
}

func TestRunReverse_ArriveOnBackward(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Defaults.ArriveOnBackward = true
	h := newHarness(t, cfg)

	h.o.RunReverseThenFallback("A", pair(point(0, 0, 0), point(0.5, 0, 0)))
	h.tickUntilIdle(t, 500)
	assert.Equal(t, []string{"drawfwalk", "run"}, h.played)
}

func TestStep_SmoothStopAndNoOvershoot(t *testing.T) {
	j := &job{to: core.Vec3{X: 10}, profile: core.MotionProfile{MoveSpeed: 2, ArriveThreshold: 0.05, RotateSpeed: 10, SmoothStop: true}}
	pose, res := j.step(core.NewPose(core.Vec3{}), 500*time.Millisecond, DefaultTimeout)
	assert.Equal(t, running, res)
	assert.InDelta(t, 1.0, pose.Position.X, 1e-9)

	j = &job{to: core.Vec3{X: 0.5}, profile: core.MotionProfile{MoveSpeed: 2, ArriveThreshold: 0.05, SmoothStop: true}}
	pose, _ = j.step(core.NewPose(core.Vec3{}), 100*time.Millisecond, DefaultTimeout)
	assert.InDelta(t, 0.15, pose.Position.X, 1e-9)

	j = &job{to: core.Vec3{X: 0.5}, profile: core.MotionProfile{MoveSpeed: 2, ArriveThreshold: 0.05}}
	pose, _ = j.step(core.NewPose(core.Vec3{}), 100*time.Millisecond, DefaultTimeout)
	assert.InDelta(t, 0.2, pose.Position.X, 1e-9)

	j = &job{to: core.Vec3{X: 0.1}, profile: core.MotionProfile{MoveSpeed: 100, ArriveThreshold: 0.05}}
	pose, _ = j.step(core.NewPose(core.Vec3{}), time.Second, DefaultTimeout)
	assert.Equal(t, 0.1, pose.Position.X)

	_, res = j.step(pose, dt, DefaultTimeout)
	assert.Equal(t, arrived, res)
}

func TestTimeout(t *testing.T) {
	slow := DefaultConfig()
	slow.Defaults.MoveSpeed = 0.001
	slow.Timeout = time.Second

	t.Run("forward continues to follow", func(t *testing.T) {
		h := newHarness(t, slow)
		target := point(5, 0, 0)
		h.o.RunForward("A", pair(point(0, 0, 0), target))

		n := h.tickUntilIdle(t, 200)
		assert.InDelta(t, 63, n, 2)
		assert.True(t, h.o.Following())
		assert.Equal(t, target.pose.Position, h.o.Tracker().Pose().Position)
		assert.Contains(t, h.kinds(), core.MotionTimeout)
		assert.Contains(t, h.logs.String(), "level=WARN")
		assert.Contains(t, h.logs.String(), "motion timed out")
	})

	t.Run("reverse falls back", func(t *testing.T) {
		h := newHarness(t, slow)
		h.o.RunReverseThenFallback("A", pair(point(0, 0, 0), point(5, 0, 0)))

		h.tickUntilIdle(t, 200)
		assert.False(t, h.o.Following())
		assert.Equal(t, h.fallback.pose, h.o.Tracker().Pose())
		assert.Contains(t, h.kinds(), core.MotionTimeout)
	})
}

func TestTokenMonotonicity(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	const n = 5
	targets := make([]*movable, n)
	jobs := make([]*job, n)
	var tokens []uint64
	for i := 0; i < n; i++ {
		targets[i] = point(float64(i+1), 0, 0)
		h.o.RunForward("A", pair(point(0, 0, 0), targets[i]))
		jobs[i] = h.o.job
		tokens = append(tokens, h.o.Token())
	}
	for i := 1; i < n; i++ {
		assert.Greater(t, tokens[i], tokens[i-1])
	}

	// a stale arrival has no observable effect
	before := h.o.Tracker().Pose()
	for i := 0; i < n-1; i++ {
		h.o.complete(jobs[i], false)
	}
	assert.Equal(t, before, h.o.Tracker().Pose())
	assert.False(t, h.o.Following())
	assert.Same(t, jobs[n-1], h.o.job)

	h.tickUntilIdle(t, 1000)
	assert.True(t, h.o.Following())
	assert.Same(t, targets[n-1], h.o.Tracker().FollowTarget())
	assert.Equal(t, targets[n-1].pose.Position, h.o.Tracker().Pose().Position)

	superseded := 0
	for _, e := range h.events {
		if e.Kind == core.MotionSuperseded {
			superseded++
		}
	}
	assert.Equal(t, n-1, superseded)
}

func TestReturnToFallback_Idempotent(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.fallback.pose = core.Pose{
		Position: core.Vec3{X: 3},
		Rotation: core.Quat{Y: 1, W: 1}.Normalized(),
		Scale:    core.Vec3{X: 2, Y: 2, Z: 2},
	}

	h.o.RunForward("A", pair(point(0, 0, 0), point(1, 0, 0)))
	h.o.Tick(dt)

	require.True(t, h.o.ReturnToFallback())
	first := h.o.Tracker().Pose()
	assert.Equal(t, h.fallback.pose, first)
	assert.False(t, h.o.Moving())

	require.True(t, h.o.ReturnToFallback())
	h.o.Tick(dt)
	assert.Equal(t, first, h.o.Tracker().Pose())
}

func TestMissingReferences(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	dead := point(1, 0, 0)
	dead.alive = false

	assert.False(t, h.o.RunForward("A", pair(point(0, 0, 0), dead)))
	assert.False(t, h.o.RunForward("A", core.PosePair{}))
	assert.False(t, h.o.Moving())
	assert.Equal(t, h.fallback.pose, h.o.Tracker().Pose())
	assert.Contains(t, h.logs.String(), "missing pose pair")

	h.fallback.alive = false
	assert.False(t, h.o.ReturnToFallback())
	assert.Contains(t, h.logs.String(), "missing fallback reference")
}

func TestNewOperationStopsFollowFirst(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	start, target := point(0, 0, 0), point(0.5, 0, 0)

	h.o.RunForward("A", pair(start, target))
	h.tickUntilIdle(t, 500)
	require.True(t, h.o.Following())

	h.o.RunReverseThenFallback("A", pair(start, target))
	assert.False(t, h.o.Following())
	assert.True(t, h.o.Moving())

	h.o.AlignInstantly(core.NewPose(core.Vec3{Y: 4}))
	assert.False(t, h.o.Moving())
	assert.Equal(t, core.Vec3{Y: 4}, h.o.Tracker().Pose().Position)
}

func TestFollowTargetDestroyed(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	target := point(0, 0, 0.01)
	h.o.RunForward("A", pair(point(0, 0, 0), target))
	h.o.Tick(dt)
	require.True(t, h.o.Following())

	target.alive = false
	h.o.Tick(dt)
	assert.False(t, h.o.Following())
}

type profiles map[string]core.MotionProfile

func (p profiles) Profile(id string, defaults core.MotionProfile) core.MotionProfile {
	if v, ok := p[id]; ok {
		return v
	}
	return defaults
}

func TestProfileApplied(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.o.profiles = profiles{"fast": {MoveSpeed: 1000, MoveState: "dash", ArriveState: "wave"}}

	h.o.RunForward("fast", pair(point(0, 0, 0), point(3, 0, 0)))
	n := h.tickUntilIdle(t, 10)
	assert.LessOrEqual(t, n, 2)
	assert.Equal(t, []string{"dash", "wave"}, h.played)
}
