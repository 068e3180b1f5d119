// Package engine runs the single-threaded presence loop. External
// collaborators only enqueue; every state machine and motion step runs
// inside Tick on the loop goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MiaMao0615/AR-Accompanied/internal/anchor"
	"github.com/MiaMao0615/AR-Accompanied/internal/channel"
	"github.com/MiaMao0615/AR-Accompanied/internal/character"
	"github.com/MiaMao0615/AR-Accompanied/internal/clock"
	"github.com/MiaMao0615/AR-Accompanied/internal/match"
	"github.com/MiaMao0615/AR-Accompanied/internal/motion"
	"github.com/MiaMao0615/AR-Accompanied/internal/queue"
	"github.com/MiaMao0615/AR-Accompanied/internal/schedule"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

// Defaults of the loop timing.
const (
	DefaultTickRate         = 16 * time.Millisecond
	DefaultScheduleInterval = time.Second
	DefaultInboxSize        = 4096
)

// Recorder journals what the loop decides. storage.Backend satisfies it.
type Recorder interface {
	RecordTrackingChange(c *core.TrackingChange) error
	RecordMatchTransition(t *core.MatchTransition) error
	RecordMotionEvent(e *core.MotionEvent) error
	RecordPoseSample(s *core.PoseSample) error
}

// Dependencies are injected at construction time.
type Dependencies struct {
	Clock    clock.Clock
	Hours    schedule.HourSource
	Schedule *schedule.Table
	Tracking anchor.DebounceOptions
	Anchors  []anchor.Config

	Fallback      core.Target
	CharacterSize core.Vec3
	Motion        motion.Config
	Animator      motion.Animator

	Recorder Recorder
	Status   channel.Sender[core.Status]
	Logger   *slog.Logger

	TickRate         time.Duration
	ScheduleInterval time.Duration
	// SampleInterval is how often the character pose is journaled. Zero disables sampling.
	SampleInterval time.Duration
	InboxSize      int
	SessionID      uint
}

// Engine owns the registry, coordinator, orchestrator and tracker.
type Engine struct {
	deps   Dependencies
	clock  clock.Clock
	logger *slog.Logger

	registry     *anchor.Registry
	tracker      *character.Tracker
	orchestrator *motion.Orchestrator
	coordinator  *match.Coordinator
	inbox        *queue.Queue[command]

	tick         atomic.Uint64
	token        atomic.Uint64
	lastSchedule time.Time
	lastSample   time.Time
	evaluated    bool
	scheduleID   string
	haveSchedule bool

	mu            sync.RWMutex
	status        core.Status
	currentAnchor string
	running       atomic.Bool
}

// New wires the components together.
func New(deps Dependencies) (*Engine, error) {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Schedule == nil {
		deps.Schedule = schedule.FromSlices()
	}
	if deps.Hours == nil {
		deps.Hours = schedule.WallClock{Clock: deps.Clock, Location: time.Local}
	}
	if deps.TickRate <= 0 {
		deps.TickRate = DefaultTickRate
	}
	if deps.ScheduleInterval < 0 {
		deps.ScheduleInterval = 0
	}
	if deps.InboxSize == 0 {
		deps.InboxSize = DefaultInboxSize
	}
	if deps.Motion.Timeout == 0 && deps.Motion.Defaults == (core.MotionProfile{}) {
		deps.Motion = motion.DefaultConfig()
	}

	e := &Engine{
		deps:          deps,
		clock:         deps.Clock,
		logger:        deps.Logger,
		inbox:         queue.New[command](deps.InboxSize),
		currentAnchor: match.NoAnchor,
	}

	e.registry = anchor.NewRegistry(anchor.NewDebouncer(deps.Tracking))
	for _, cfg := range deps.Anchors {
		if err := e.RegisterAnchor(cfg); err != nil {
			return nil, err
		}
	}

	e.tracker = character.NewTracker(deps.Fallback, deps.CharacterSize, deps.Logger)

	orch, err := motion.New(e.tracker, deps.Motion, motion.Options{
		Profiles: deps.Schedule,
		Animator: deps.Animator,
		Events:   e.recordMotion,
		Logger:   deps.Logger,
		Now:      deps.Clock.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("creating motion orchestrator: %w", err)
	}
	e.orchestrator = orch
	e.coordinator = match.New(e.registry, deps.Schedule, deps.Hours, orch, deps.Logger)

	if !e.tracker.EnsureSpawned() {
		// retried by the coordinator on every evaluation
		e.logger.Warn("character not spawned at startup")
	}
	return e, nil
}

// RegisterAnchor adds an anchor. It must be called before the loop starts.
func (e *Engine) RegisterAnchor(cfg anchor.Config) error {
	if e.running.Load() {
		return errors.New("cannot register anchor while the loop is running")
	}
	if _, err := e.registry.Register(cfg); err != nil {
		return fmt.Errorf("registering anchor: %w", err)
	}
	return nil
}

func (e *Engine) enqueue(c command) error {
	c.at = e.clock.Now()
	if err := e.inbox.Push(c); err != nil {
		return fmt.Errorf("%s: %w", c.kind, err)
	}
	return nil
}

func (e *Engine) lookup(name string) (*anchor.Spot, error) {
	return e.registry.Lookup(name)
}

// NotifyTrackingStatus pushes a raw tier for an anchor. Safe for concurrent use.
func (e *Engine) NotifyTrackingStatus(anchorID string, tier core.ConfidenceTier) error {
	if _, err := e.lookup(anchorID); err != nil {
		return err
	}
	return e.enqueue(command{kind: cmdTrackingStatus, anchor: anchorID, tier: tier})
}

// NotifyTrackingChanged requests a coordinator re-evaluation for anchorID.
func (e *Engine) NotifyTrackingChanged(anchorID string) error {
	return e.enqueue(command{kind: cmdTrackingChanged, anchor: anchorID})
}

// NotifyScheduleTick forces a schedule re-evaluation.
func (e *Engine) NotifyScheduleTick() error {
	return e.enqueue(command{kind: cmdScheduleTick})
}

// UpdateAnchorPose sets the world pose of an anchor.
func (e *Engine) UpdateAnchorPose(anchorID string, pose core.Pose) error {
	if _, err := e.lookup(anchorID); err != nil {
		return err
	}
	if !pose.IsFinite() {
		return fmt.Errorf("%s: %w", anchorID, core.ErrNonFinite)
	}
	return e.enqueue(command{kind: cmdAnchorPose, anchor: anchorID, pose: pose.Sanitized()})
}

// SetActiveSpot switches the current spot of an anchor.
func (e *Engine) SetActiveSpot(anchorID, spotID string) error {
	s, err := e.lookup(anchorID)
	if err != nil {
		return err
	}
	if !s.HasSpot(spotID) {
		return fmt.Errorf("%s/%s: %w", anchorID, spotID, anchor.ErrUnknownSpot)
	}
	return e.enqueue(command{kind: cmdSetSpot, anchor: anchorID, spotID: spotID})
}

// CycleNextSpot advances the current spot of an anchor.
func (e *Engine) CycleNextSpot(anchorID string) error {
	if _, err := e.lookup(anchorID); err != nil {
		return err
	}
	return e.enqueue(command{kind: cmdCycleSpot, anchor: anchorID})
}

// CurrentAnchorID returns the spot id of the anchor chosen by the last
// evaluation. Safe for concurrent use.
func (e *Engine) CurrentAnchorID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentAnchor
}

// Status returns the last published status. Safe for concurrent use.
func (e *Engine) Status() core.Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// TickCount returns the number of ticks run so far.
func (e *Engine) TickCount() uint64 { return e.tick.Load() }

// Token returns the motion token as of the last tick. Safe for concurrent use.
func (e *Engine) Token() uint64 { return e.token.Load() }

// LogAttrs returns the loop attributes injected into every log record.
func (e *Engine) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.Uint64("tick", e.tick.Load()),
		slog.Uint64("token", e.token.Load()),
	}
}

// Pending returns the number of queued inputs.
func (e *Engine) Pending() int { return e.inbox.Len() }

// Tick runs one cooperative step: inbox in arrival order, elapsed loss
// deadlines, schedule polling, the motion step, sampling and status.
func (e *Engine) Tick(dt time.Duration) {
	now := e.clock.Now()
	e.tick.Add(1)

	for _, c := range e.inbox.Drain() {
		e.expire(c.at)
		e.apply(c)
	}
	e.expire(now)

	if e.deps.ScheduleInterval > 0 &&
		(e.lastSchedule.IsZero() || now.Sub(e.lastSchedule) >= e.deps.ScheduleInterval) {
		e.lastSchedule = now
		e.pollSchedule()
	}

	e.orchestrator.Tick(dt)
	e.token.Store(e.tracker.Token())

	e.sample(now)
	e.publish(now)
}

// Run drives Tick from a clock ticker until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine already running")
	}
	defer e.running.Store(false)

	ticker := e.clock.NewTicker(e.deps.TickRate)
	defer ticker.Stop()

	e.logger.Info("presence loop started", "tickRate", e.deps.TickRate, "anchors", e.registry.Len())
	last := e.clock.Now()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("presence loop stopped", "ticks", e.tick.Load())
			return ctx.Err()
		case t := <-ticker.C:
			dt := t.Sub(last)
			if dt < 0 {
				dt = 0
			}
			last = t
			e.Tick(dt)
		}
	}
}

func (e *Engine) apply(c command) {
	switch c.kind {
	case cmdTrackingStatus:
		events, err := e.registry.Observe(c.anchor, c.tier, c.at)
		if err != nil {
			e.logger.Warn("tracking status rejected", "anchor", c.anchor, "error", err)
			return
		}
		for _, ev := range events {
			e.onAnchorEvent(ev)
		}

	case cmdTrackingChanged:
		e.evaluate("tracking:" + c.anchor)

	case cmdScheduleTick:
		e.evaluate("schedule_tick")

	case cmdAnchorPose:
		if err := e.registry.UpdatePose(c.anchor, c.pose); err != nil {
			e.logger.Warn("anchor pose rejected", "anchor", c.anchor, "error", err)
		}

	case cmdSetSpot:
		s, err := e.lookup(c.anchor)
		if err == nil {
			err = s.SetActiveSpot(c.spotID)
		}
		if err != nil {
			e.logger.Warn("set active spot rejected", "anchor", c.anchor, "spotId", c.spotID, "error", err)
			return
		}
		e.logger.Info("active spot set", "anchor", c.anchor, "spotId", s.CurrentSpotID())
		e.evaluate("spot:" + c.anchor)

	case cmdCycleSpot:
		s, err := e.lookup(c.anchor)
		var next string
		if err == nil {
			next, err = s.CycleNextSpot()
		}
		if err != nil {
			e.logger.Warn("cycle spot rejected", "anchor", c.anchor, "error", err)
			return
		}
		e.logger.Info("active spot cycled", "anchor", c.anchor, "spotId", next)
		e.evaluate("spot:" + c.anchor)
	}
}

func (e *Engine) expire(at time.Time) {
	for _, ev := range e.registry.Expire(at) {
		e.onAnchorEvent(ev)
	}
}

func (e *Engine) onAnchorEvent(ev anchor.Event) {
	if !ev.Transition.Stable() {
		e.logger.Debug("tracking debounce", "anchor", ev.Anchor, "transition", ev.Transition.String(), "tier", ev.Tier.String())
		return
	}

	s, _ := e.lookup(ev.Anchor)
	tracked := ev.Transition == anchor.BecameTracked
	spotID := anchor.NoSpot
	if s != nil {
		spotID = s.CurrentSpotID()
	}
	e.logger.Info("tracking changed", "anchor", ev.Anchor, "tracked", tracked, "spotId", spotID)

	if e.deps.Recorder != nil {
		rec := &core.TrackingChange{
			SessionID: e.deps.SessionID,
			Time:      ev.At,
			Tick:      e.tick.Load(),
			AnchorID:  ev.Anchor,
			SpotID:    spotID,
			Tracked:   tracked,
			Tier:      ev.Tier.String(),
		}
		if err := e.deps.Recorder.RecordTrackingChange(rec); err != nil {
			e.logger.Debug("failed to record tracking change", "error", err)
		}
	}

	e.evaluate("tracking:" + ev.Anchor)
}

// pollSchedule re-evaluates only when the resolved schedule id moved
// since the last evaluation.
func (e *Engine) pollSchedule() {
	id, ok := e.deps.Schedule.Resolve(e.deps.Hours.CurrentHour())
	if e.evaluated && id == e.scheduleID && ok == e.haveSchedule {
		return
	}
	e.evaluate("schedule")
}

func (e *Engine) evaluate(reason string) {
	rec := e.coordinator.Evaluate(reason)
	e.evaluated = true
	e.scheduleID, e.haveSchedule = rec.ScheduleID, rec.ScheduleID != ""

	e.mu.Lock()
	e.currentAnchor = e.coordinator.CurrentAnchorID()
	e.mu.Unlock()

	if e.deps.Recorder == nil {
		return
	}
	rec.SessionID = e.deps.SessionID
	rec.Time = e.clock.Now()
	rec.Tick = e.tick.Load()
	if err := e.deps.Recorder.RecordMatchTransition(&rec); err != nil {
		e.logger.Debug("failed to record match transition", "error", err)
	}
}

func (e *Engine) recordMotion(ev core.MotionEvent) {
	e.token.Store(e.tracker.Token())
	if e.deps.Recorder == nil {
		return
	}
	ev.SessionID = e.deps.SessionID
	ev.Tick = e.tick.Load()
	if err := e.deps.Recorder.RecordMotionEvent(&ev); err != nil {
		e.logger.Debug("failed to record motion event", "error", err)
	}
}

func (e *Engine) sample(now time.Time) {
	if e.deps.Recorder == nil || e.deps.SampleInterval <= 0 || !e.tracker.Spawned() {
		return
	}
	if !e.lastSample.IsZero() && now.Sub(e.lastSample) < e.deps.SampleInterval {
		return
	}
	e.lastSample = now
	s := &core.PoseSample{
		SessionID: e.deps.SessionID,
		Time:      now,
		Tick:      e.tick.Load(),
		Token:     e.tracker.Token(),
		Pose:      e.tracker.Pose(),
		Following: e.orchestrator.Following(),
		Moving:    e.orchestrator.Moving(),
	}
	if err := e.deps.Recorder.RecordPoseSample(s); err != nil {
		e.logger.Debug("failed to record pose sample", "error", err)
	}
}

func (e *Engine) publish(now time.Time) {
	st := core.Status{
		Time:       now,
		Tick:       e.tick.Load(),
		Hour:       e.coordinator.LastHour(),
		ScheduleID: e.coordinator.LastScheduleID(),
		AnchorID:   e.coordinator.CurrentAnchorID(),
		Anchor:     e.coordinator.CurrentAnchorName(),
		Matched:    e.coordinator.LastWasMatch(),
		Token:      e.tracker.Token(),
		Moving:     e.orchestrator.Moving(),
		Following:  e.orchestrator.Following(),
		Pose:       e.tracker.Pose(),
	}

	e.mu.Lock()
	e.status = st
	e.mu.Unlock()

	if e.deps.Status != nil {
		e.deps.Status.TrySend(st)
	}
}
