// Package match decides, on every tracking or schedule change, whether the
// character should run to an anchor, run back, or rest at the fallback.
package match

import (
	"log/slog"
	"strings"

	"github.com/MiaMao0615/AR-Accompanied/internal/anchor"
	"github.com/MiaMao0615/AR-Accompanied/internal/schedule"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

// NoAnchor is reported when no tracked anchor with a live pair exists.
const NoAnchor = anchor.NoSpot

// Anchors lists stably tracked anchors that have a live pair for their
// current spot, in registration order.
type Anchors interface {
	Candidates() []anchor.Candidate
}

// Resolver maps an hour to a schedule id.
type Resolver interface {
	Resolve(hour float64) (string, bool)
}

// Motion is the command surface of the motion layer.
type Motion interface {
	EnsureSpawned() bool
	AlignInstantly(pose core.Pose)
	RunForward(scheduleID string, pair core.PosePair) bool
	RunReverseThenFallback(scheduleID string, pair core.PosePair) bool
	ReturnToFallback() bool
}

// Snapshot is the memory of the last confirmed match. Pair is only set
// together with Matched.
type Snapshot struct {
	Matched    bool
	AnchorID   string
	SpotID     string
	ScheduleID string
	Pair       core.PosePair
}

// Coordinator runs the four-cell transition table. It never writes the
// character pose itself.
type Coordinator struct {
	anchors  Anchors
	resolver Resolver
	hours    schedule.HourSource
	motion   Motion
	logger   *slog.Logger

	lastWasMatch bool
	snapshot     Snapshot
	current      anchor.Candidate
	haveCurrent  bool
	lastHour     float64
	lastTimeID   string
}

// New builds a coordinator. The resolver and hour source are injected.
func New(anchors Anchors, resolver Resolver, hours schedule.HourSource, motion Motion, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		anchors:  anchors,
		resolver: resolver,
		hours:    hours,
		motion:   motion,
		logger:   logger,
	}
}

// LastWasMatch returns the verdict of the previous evaluation.
func (c *Coordinator) LastWasMatch() bool { return c.lastWasMatch }

// Snapshot returns the last confirmed match.
func (c *Coordinator) Snapshot() Snapshot { return c.snapshot }

// CurrentAnchorID returns the spot id of the anchor chosen by the last
// evaluation, or NoAnchor.
func (c *Coordinator) CurrentAnchorID() string {
	if !c.haveCurrent {
		return NoAnchor
	}
	return c.current.SpotID
}

// CurrentAnchorName returns the name of the anchor chosen by the last evaluation.
func (c *Coordinator) CurrentAnchorName() string {
	if !c.haveCurrent {
		return ""
	}
	return c.current.AnchorID
}

// LastHour returns the hour polled by the last evaluation.
func (c *Coordinator) LastHour() float64 { return c.lastHour }

// LastScheduleID returns the schedule id resolved by the last evaluation.
func (c *Coordinator) LastScheduleID() string { return c.lastTimeID }

// choose prefers an anchor whose current spot equals the schedule id and
// otherwise accepts any tracked anchor with a live pair.
func choose(cands []anchor.Candidate, timeID string, haveTime bool) (anchor.Candidate, bool) {
	if haveTime {
		for _, cand := range cands {
			if strings.EqualFold(cand.SpotID, timeID) {
				return cand, true
			}
		}
	}
	if len(cands) > 0 {
		return cands[0], true
	}
	return anchor.Candidate{}, false
}

// Evaluate polls the hour, picks an anchor and applies exactly one cell
// of the transition table.
func (c *Coordinator) Evaluate(reason string) core.MatchTransition {
	hour := c.hours.CurrentHour()
	timeID, haveTime := c.resolver.Resolve(hour)

	chosen, havePair := choose(c.anchors.Candidates(), timeID, haveTime)
	nowMatch := havePair && haveTime && strings.EqualFold(chosen.SpotID, timeID)

	c.current, c.haveCurrent = chosen, havePair
	c.lastHour, c.lastTimeID = hour, timeID

	rec := core.MatchTransition{
		Reason:     reason,
		Hour:       hour,
		ScheduleID: timeID,
		AnchorID:   c.CurrentAnchorID(),
		LastMatch:  c.lastWasMatch,
		NowMatch:   nowMatch,
	}

	c.logger.Debug("evaluating match",
		"reason", reason,
		"hour", hour,
		"timeId", timeID,
		"anchor", chosen.AnchorID,
		"spotId", c.CurrentAnchorID(),
		"lastWasMatch", c.lastWasMatch,
		"nowMatch", nowMatch,
	)

	switch {
	case c.lastWasMatch && nowMatch:
		rec.Cell = core.CellMatchToMatch
		rec.Action = core.ActionRefreshSnapshot
		c.record(chosen, timeID)

	case c.lastWasMatch && !nowMatch:
		rec.Cell = core.CellMatchToNoMatch
		rec.Action = c.leaveMatch(chosen, havePair)

	case !c.lastWasMatch && nowMatch:
		rec.Cell = core.CellNoMatchToMatch
		rec.Action = c.enterMatch(chosen, timeID)

	default:
		rec.Cell = core.CellNoMatchToNoMatch
		rec.Action = core.ActionEnsureAtFallback
		c.motion.EnsureSpawned()
		c.motion.ReturnToFallback()
		c.clear()
	}

	c.logger.Info("match transition", "cell", rec.Cell, "action", rec.Action,
		"timeId", timeID, "spotId", rec.AnchorID, "reason", reason)
	return rec
}

func (c *Coordinator) leaveMatch(chosen anchor.Candidate, havePair bool) string {
	c.motion.EnsureSpawned()
	snap := c.snapshot
	defer c.clear()

	changed := !havePair ||
		!strings.EqualFold(snap.AnchorID, chosen.AnchorID) ||
		!strings.EqualFold(snap.SpotID, chosen.SpotID)
	if changed || !snap.Pair.Valid() {
		if !snap.Pair.Valid() {
			c.logger.Warn("match lost with missing snapshot pose pair, returning to fallback",
				"anchor", snap.AnchorID, "spotId", snap.SpotID)
		}
		c.motion.ReturnToFallback()
		return core.ActionHardFallback
	}

	c.motion.RunReverseThenFallback(snap.ScheduleID, snap.Pair)
	return core.ActionReverseToFallback
}

func (c *Coordinator) enterMatch(chosen anchor.Candidate, timeID string) string {
	if !c.motion.EnsureSpawned() {
		c.logger.Warn("match found but character cannot be spawned", "timeId", timeID)
		c.clear()
		return core.ActionHardFallback
	}

	startPose, ok := chosen.Pair.Start.WorldPose()
	if !ok || !chosen.Pair.Valid() {
		c.logger.Warn("match found with missing pose pair, returning to fallback",
			"anchor", chosen.AnchorID, "spotId", chosen.SpotID)
		c.motion.ReturnToFallback()
		c.clear()
		return core.ActionHardFallback
	}

	c.motion.AlignInstantly(startPose)
	c.motion.RunForward(timeID, chosen.Pair)
	c.record(chosen, timeID)
	return core.ActionAlignAndForward
}

func (c *Coordinator) record(chosen anchor.Candidate, timeID string) {
	c.snapshot = Snapshot{
		Matched:    true,
		AnchorID:   chosen.AnchorID,
		SpotID:     chosen.SpotID,
		ScheduleID: timeID,
		Pair:       chosen.Pair,
	}
	c.lastWasMatch = true
}

func (c *Coordinator) clear() {
	c.snapshot = Snapshot{}
	c.lastWasMatch = false
}
