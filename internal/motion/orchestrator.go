// Package motion moves the character between anchor points. Every
// operation bumps the character's motion token before doing anything
// else, and a job only acts while its captured token is still current.
package motion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MiaMao0615/AR-Accompanied/internal/character"
	"github.com/MiaMao0615/AR-Accompanied/internal/geo"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// DefaultArriveThreshold applies when a profile leaves the threshold unset.
	DefaultArriveThreshold = 0.06
	// DefaultTimeout caps a single point-to-point run.
	DefaultTimeout = 30 * time.Second
)

// DefaultProfile is the motion tuning used when a schedule id has no record.
var DefaultProfile = core.MotionProfile{
	MoveSpeed:       2,
	ArriveThreshold: DefaultArriveThreshold,
	RotateSpeed:     10,
	SmoothStop:      true,
	MoveState:       "drawfwalk",
	ArriveState:     "run",
}

// ProfileSource resolves the motion profile of a schedule id.
type ProfileSource interface {
	Profile(id string, defaults core.MotionProfile) core.MotionProfile
}

// Config tunes the orchestrator.
type Config struct {
	Defaults           core.MotionProfile
	Timeout            time.Duration
	FollowCopyRotation bool
	FollowCopyScale    bool
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Defaults:           DefaultProfile,
		Timeout:            DefaultTimeout,
		FollowCopyRotation: true,
		FollowCopyScale:    true,
	}
}

// Options are the collaborators of an Orchestrator. All are optional.
type Options struct {
	Profiles ProfileSource
	Animator Animator
	// Events receives every motion lifecycle event.
	Events func(core.MotionEvent)
	Logger *slog.Logger
	// Now stamps events. Defaults to time.Now.
	Now func() time.Time
}

// Orchestrator is the only writer of the character tracker.
type Orchestrator struct {
	tracker  *character.Tracker
	cfg      Config
	profiles ProfileSource
	animator Animator
	events   func(core.MotionEvent)
	logger   *slog.Logger
	now      func() time.Time

	job *job

	issued     metric.Int64Counter
	arrivals   metric.Int64Counter
	timeouts   metric.Int64Counter
	superseded metric.Int64Counter
}

// New creates an orchestrator driving tracker.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(tracker *character.Tracker, cfg Config, opts Options) (*Orchestrator, error) {
	if cfg.Defaults.ArriveThreshold <= 0 {
		cfg.Defaults.ArriveThreshold = DefaultArriveThreshold
	}
	o := &Orchestrator{
		tracker:  tracker,
		cfg:      cfg,
		profiles: opts.Profiles,
		animator: opts.Animator,
		events:   opts.Events,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.animator == nil {
		o.animator = LogAnimator{Logger: o.logger}
	}
	if o.now == nil {
		o.now = time.Now
	}

	m := meter()
	var err error

	o.issued, err = m.Int64Counter(
		"motion.tokens.issued",
		metric.WithDescription("Total motion operations issued"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating issued counter: %w", err)
	}
	o.arrivals, err = m.Int64Counter(
		"motion.arrivals",
		metric.WithDescription("Total point-to-point arrivals"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating arrivals counter: %w", err)
	}
	o.timeouts, err = m.Int64Counter(
		"motion.timeouts",
		metric.WithDescription("Total point-to-point runs aborted by timeout"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating timeouts counter: %w", err)
	}
	o.superseded, err = m.Int64Counter(
		"motion.superseded",
		metric.WithDescription("Total runs invalidated by a newer operation"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating superseded counter: %w", err)
	}

	return o, nil
}

// Tracker returns the tracker driven by the orchestrator.
func (o *Orchestrator) Tracker() *character.Tracker { return o.tracker }

// Token returns the current motion token.
func (o *Orchestrator) Token() uint64 { return o.tracker.Token() }

// Moving reports whether a current point-to-point job is running.
func (o *Orchestrator) Moving() bool {
	return o.job != nil && o.job.token == o.tracker.Token()
}

// Following reports whether follow mode is active.
func (o *Orchestrator) Following() bool { return o.tracker.FollowTarget() != nil }

// EnsureSpawned spawns the character at the fallback if it does not exist yet.
func (o *Orchestrator) EnsureSpawned() bool { return o.tracker.EnsureSpawned() }

// issue bumps the token first and only then cancels the previous job and follow.
func (o *Orchestrator) issue(kind string) uint64 {
	token := o.tracker.BumpToken()
	o.issued.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))

	if prev := o.job; prev != nil {
		o.job = nil
		o.superseded.Add(context.Background(), 1)
		o.emit(core.MotionEvent{
			Token:      prev.token,
			Kind:       core.MotionSuperseded,
			ScheduleID: prev.scheduleID,
			Forward:    prev.forward,
			From:       prev.from,
			To:         prev.to,
			Elapsed:    prev.elapsed,
			Trail:      prev.trail,
		})
	}
	o.tracker.SetFollowTarget(nil)
	return token
}

// AlignInstantly teleports the character to pose with no animation.
func (o *Orchestrator) AlignInstantly(pose core.Pose) {
	token := o.issue(core.MotionAlign)
	o.tracker.SetPose(pose)
	o.emit(core.MotionEvent{Token: token, Kind: core.MotionAlign, To: pose.Position})
	o.logger.Debug("aligned instantly", "position", pose.Position)
}

// RunForward drives the character start -> target and follows target on
// arrival. A missing or dead pair returns the character to the fallback.
func (o *Orchestrator) RunForward(scheduleID string, pair core.PosePair) bool {
	return o.run(scheduleID, pair, true)
}

// RunReverseThenFallback drives target -> start and returns to the fallback on arrival.
func (o *Orchestrator) RunReverseThenFallback(scheduleID string, pair core.PosePair) bool {
	return o.run(scheduleID, pair, false)
}

func (o *Orchestrator) run(scheduleID string, pair core.PosePair, forward bool) bool {
	kind := core.MotionReverse
	if forward {
		kind = core.MotionForward
	}
	if !pair.Valid() {
		o.logger.Warn("motion requested with missing pose pair, returning to fallback",
			"scheduleId", scheduleID, "direction", kind)
		o.ReturnToFallback()
		return false
	}

	token := o.issue(kind)

	startPose, _ := pair.Start.WorldPose()
	targetPose, _ := pair.Target.WorldPose()
	begin, dest := startPose, targetPose
	if !forward {
		begin, dest = targetPose, startPose
	}

	profile := o.profile(scheduleID)

	pose := begin
	dir := dest.Position.Sub(begin.Position)
	if dir.LenSq() > 1e-6 {
		pose.Rotation = geo.LookRotation(dir.Normalized(), core.Up)
	}
	o.tracker.SetPose(pose)
	o.animator.Play(profile.MoveState)

	o.job = &job{
		token:      token,
		scheduleID: scheduleID,
		forward:    forward,
		from:       begin.Position,
		to:         dest.Position,
		target:     pair.Target,
		profile:    profile,
		trail:      []core.Vec3{begin.Position},
	}
	o.emit(core.MotionEvent{
		Token:      token,
		Kind:       kind,
		ScheduleID: scheduleID,
		Forward:    forward,
		From:       begin.Position,
		To:         dest.Position,
	})
	o.logger.Info("motion started", "scheduleId", scheduleID, "direction", kind,
		"from", begin.Position, "to", dest.Position, "token", token)
	return true
}

// ReturnToFallback cancels everything, including follow, and forces the
// character onto the fallback position, rotation and world scale.
func (o *Orchestrator) ReturnToFallback() bool {
	token := o.issue(core.MotionFallback)
	fb, ok := o.tracker.FallbackPose()
	if !ok {
		o.logger.Warn("cannot return to fallback: missing fallback reference")
		return false
	}
	o.tracker.SetPose(fb)
	o.emit(core.MotionEvent{Token: token, Kind: core.MotionFallback, To: fb.Position})
	o.logger.Debug("returned to fallback", "token", token)
	return true
}

// Tick advances the running job and follow mode by dt.
func (o *Orchestrator) Tick(dt time.Duration) {
	if j := o.job; j != nil {
		if j.token != o.tracker.Token() {
			o.job = nil
		} else {
			pose, res := j.step(o.tracker.Pose(), dt, o.cfg.Timeout)
			o.tracker.SetPose(pose)
			if res != running {
				o.complete(j, res == timedOut)
			}
		}
	}

	if target := o.tracker.FollowTarget(); target != nil {
		o.applyFollow(target)
	}
}

// complete runs the arrival branch of j. Timeout takes the same path.
func (o *Orchestrator) complete(j *job, timeout bool) {
	if j.token != o.tracker.Token() {
		return
	}
	o.job = nil

	if timeout {
		o.timeouts.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("direction", j.direction())))
		o.logger.Warn("motion timed out, continuing on the arrival path",
			"scheduleId", j.scheduleID, "direction", j.direction(),
			"elapsed", j.elapsed, "remaining", j.to.Sub(o.tracker.Pose().Position).Len())
	} else {
		o.arrivals.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("direction", j.direction())))
	}

	kind := core.MotionArrived
	if timeout {
		kind = core.MotionTimeout
	}
	o.emit(core.MotionEvent{
		Token:      j.token,
		Kind:       kind,
		ScheduleID: j.scheduleID,
		Forward:    j.forward,
		From:       j.from,
		To:         j.to,
		Elapsed:    j.elapsed,
		Trail:      j.trail,
	})

	if j.forward {
		o.animator.Play(j.profile.ArriveState)
		o.startFollow(j)
		return
	}

	if j.profile.ArriveOnBackward {
		o.animator.Play(j.profile.ArriveState)
	}
	o.ReturnToFallback()
}

func (o *Orchestrator) startFollow(j *job) {
	o.tracker.SetFollowTarget(j.target)
	o.applyFollow(j.target)
	o.emit(core.MotionEvent{Token: j.token, Kind: core.MotionFollow, ScheduleID: j.scheduleID, Forward: true, To: j.to})
	o.logger.Debug("following target", "scheduleId", j.scheduleID, "token", j.token)
}

func (o *Orchestrator) applyFollow(target core.Target) {
	tp, ok := target.WorldPose()
	if !ok {
		o.tracker.SetFollowTarget(nil)
		o.logger.Debug("follow target destroyed, follow stopped")
		return
	}
	pose := o.tracker.Pose()
	pose.Position = tp.Position
	if o.cfg.FollowCopyRotation {
		pose.Rotation = tp.Rotation
	}
	if o.cfg.FollowCopyScale {
		pose.Scale = tp.Scale
	}
	o.tracker.SetPose(pose)
}

func (o *Orchestrator) profile(scheduleID string) core.MotionProfile {
	p := o.cfg.Defaults
	if o.profiles != nil {
		p = o.profiles.Profile(scheduleID, o.cfg.Defaults)
	}
	if p.ArriveThreshold <= 0 {
		p.ArriveThreshold = DefaultArriveThreshold
	}
	return p
}

func (o *Orchestrator) emit(e core.MotionEvent) {
	if o.events == nil {
		return
	}
	e.Time = o.now()
	o.events(e)
}
