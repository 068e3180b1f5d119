package anchor

import (
	"time"

	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

// DefaultLossGrace is how long a lost anchor stays tracked before it is
// declared untracked.
const DefaultLossGrace = 3 * time.Second

// Transition is the outcome of feeding one observation to the debouncer.
type Transition int

const (
	// NoChange means the observation did not alter the debounced state.
	NoChange Transition = iota
	// BecameTracked is a stable Untracked -> Tracked transition.
	BecameTracked
	// LossPending means the raw signal dropped and the grace timer started.
	LossPending
	// LossAborted means tracking came back before the grace timer elapsed.
	LossAborted
	// BecameUntracked is a stable transition to Untracked.
	BecameUntracked
)

func (t Transition) String() string {
	switch t {
	case BecameTracked:
		return "became_tracked"
	case LossPending:
		return "loss_pending"
	case LossAborted:
		return "loss_aborted"
	case BecameUntracked:
		return "became_untracked"
	default:
		return "no_change"
	}
}

// Stable reports whether the transition toggles the stable verdict.
func (t Transition) Stable() bool {
	return t == BecameTracked || t == BecameUntracked
}

// DebounceOptions tune the tracking debouncer.
type DebounceOptions struct {
	LossGrace              time.Duration
	TreatLimitedAsTracked  bool
	TreatExtendedAsTracked bool
}

// Debouncer turns a flickering raw tier feed into stable tracking
// transitions. Deadlines are wall-clock times checked by the caller's loop.
type Debouncer struct {
	opts DebounceOptions
}

// NewDebouncer returns a debouncer. A negative grace is treated as zero.
func NewDebouncer(opts DebounceOptions) *Debouncer {
	if opts.LossGrace < 0 {
		opts.LossGrace = 0
	}
	return &Debouncer{opts: opts}
}

// Options returns the effective options.
func (d *Debouncer) Options() DebounceOptions { return d.opts }

// Considered maps a tier onto the raw tracked boolean.
func (d *Debouncer) Considered(tier core.ConfidenceTier) bool {
	switch tier {
	case core.TierTracked:
		return true
	case core.TierExtendedTracked:
		return d.opts.TreatExtendedAsTracked
	case core.TierLimited:
		return d.opts.TreatLimitedAsTracked
	default:
		return false
	}
}

// Observe applies a raw tier observed at now. An elapsed deadline is
// expired before the observation is applied, so a recovery that arrives
// after the grace window still produces the loss first.
func (d *Debouncer) Observe(s *Spot, tier core.ConfidenceTier, now time.Time) []Transition {
	var out []Transition
	if t := d.Expire(s, now); t != NoChange {
		out = append(out, t)
	}

	s.lastTier = tier
	tracked := d.Considered(tier)
	if tracked == s.trackedRaw {
		return out
	}
	s.trackedRaw = tracked

	if tracked {
		switch s.state {
		case core.PendingLoss:
			s.state = core.Tracked
			s.deadline = time.Time{}
			return append(out, LossAborted)
		case core.Untracked:
			s.state = core.Tracked
			s.spawnPairs()
			s.activateDefaultSpot()
			return append(out, BecameTracked)
		}
		return out
	}

	if s.state != core.Tracked {
		return out
	}
	if d.opts.LossGrace == 0 {
		return append(out, d.lose(s))
	}
	s.state = core.PendingLoss
	s.deadline = now.Add(d.opts.LossGrace)
	return append(out, LossPending)
}

// Expire completes a pending loss whose deadline is not after now.
func (d *Debouncer) Expire(s *Spot, now time.Time) Transition {
	if s.state != core.PendingLoss || now.Before(s.deadline) {
		return NoChange
	}
	return d.lose(s)
}

func (d *Debouncer) lose(s *Spot) Transition {
	s.state = core.Untracked
	s.deadline = time.Time{}
	s.currentSpotID = NoSpot
	s.despawnPairs()
	return BecameUntracked
}
