package anchor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

// Event is a transition of one anchor.
type Event struct {
	Anchor     string
	Transition Transition
	Tier       core.ConfidenceTier
	At         time.Time
}

// Candidate is a stably tracked anchor whose current spot has a live pair.
type Candidate struct {
	AnchorID string
	SpotID   string
	Pair     core.PosePair
}

// Registry holds anchors in registration order. It is not safe for
// concurrent use; the engine loop owns it.
type Registry struct {
	debouncer *Debouncer
	spots     []*Spot
	byName    map[string]*Spot
}

// NewRegistry returns an empty registry using the given debouncer.
func NewRegistry(d *Debouncer) *Registry {
	if d == nil {
		d = NewDebouncer(DebounceOptions{LossGrace: DefaultLossGrace})
	}
	return &Registry{debouncer: d, byName: make(map[string]*Spot)}
}

// Register adds an anchor. Names are case-insensitive and must be unique.
func (r *Registry) Register(cfg Config) (*Spot, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("anchor name is empty")
	}
	key := strings.ToLower(cfg.Name)
	if _, ok := r.byName[key]; ok {
		return nil, fmt.Errorf("anchor %q already registered", cfg.Name)
	}
	s := newSpot(cfg)
	r.spots = append(r.spots, s)
	r.byName[key] = s
	return s, nil
}

// Lookup returns the anchor registered under name.
func (r *Registry) Lookup(name string) (*Spot, error) {
	s, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownAnchor)
	}
	return s, nil
}

// Spots returns all anchors in registration order.
func (r *Registry) Spots() []*Spot { return append([]*Spot(nil), r.spots...) }

// Len returns the number of registered anchors.
func (r *Registry) Len() int { return len(r.spots) }

// Observe feeds a raw tier for one anchor.
func (r *Registry) Observe(name string, tier core.ConfidenceTier, now time.Time) ([]Event, error) {
	s, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	var events []Event
	for _, t := range r.debouncer.Observe(s, tier, now) {
		events = append(events, Event{Anchor: s.name, Transition: t, Tier: tier, At: now})
	}
	return events, nil
}

// Expire completes every pending loss whose deadline is not after now,
// ordered by deadline then registration order.
func (r *Registry) Expire(now time.Time) []Event {
	var due []*Spot
	for _, s := range r.spots {
		if dl, ok := s.PendingLossDeadline(); ok && !now.Before(dl) {
			due = append(due, s)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})

	events := make([]Event, 0, len(due))
	for _, s := range due {
		dl := s.deadline
		if t := r.debouncer.Expire(s, now); t != NoChange {
			events = append(events, Event{Anchor: s.name, Transition: t, Tier: s.lastTier, At: dl})
		}
	}
	return events
}

// NextDeadline returns the earliest pending loss deadline.
func (r *Registry) NextDeadline() (time.Time, bool) {
	var next time.Time
	found := false
	for _, s := range r.spots {
		if dl, ok := s.PendingLossDeadline(); ok && (!found || dl.Before(next)) {
			next, found = dl, true
		}
	}
	return next, found
}

// UpdatePose sets the world pose of an anchor.
func (r *Registry) UpdatePose(name string, pose core.Pose) error {
	s, err := r.Lookup(name)
	if err != nil {
		return err
	}
	s.SetPose(pose)
	return nil
}

// Pair returns the live pair of anchor for scheduleID.
func (r *Registry) Pair(anchorID, scheduleID string) (core.PosePair, bool) {
	s, err := r.Lookup(anchorID)
	if err != nil {
		return core.PosePair{}, false
	}
	return s.Pair(scheduleID)
}

// Candidates returns stably tracked anchors with a live pair, in registration order.
func (r *Registry) Candidates() []Candidate {
	var out []Candidate
	for _, s := range r.spots {
		if !s.IsTracked() {
			continue
		}
		if pair, ok := s.LivePair(); ok {
			out = append(out, Candidate{AnchorID: s.name, SpotID: s.currentSpotID, Pair: pair})
		}
	}
	return out
}
