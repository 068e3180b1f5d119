package anchor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

// NoSpot is the current spot id of an anchor that is not stably tracked.
const NoSpot = "none"

var (
	// ErrUnknownAnchor is returned for an anchor name that was never registered.
	ErrUnknownAnchor = errors.New("unknown anchor")
	// ErrUnknownSpot is returned when a spot id is not among the anchor's pairs.
	ErrUnknownSpot = errors.New("unknown spot")
	// ErrNotTracked is returned when a spot change is requested while the anchor is untracked.
	ErrNotTracked = errors.New("anchor not tracked")
)

// PairConfig declares one start/target pair. Poses are local to the anchor.
type PairConfig struct {
	SpotID string    `json:"spotId" mapstructure:"spotId"`
	Start  core.Pose `json:"start" mapstructure:"start"`
	Target core.Pose `json:"target" mapstructure:"target"`
}

// Config declares one physical marker.
type Config struct {
	Name          string       `json:"name" mapstructure:"name"`
	DefaultSpotID string       `json:"defaultSpotId" mapstructure:"defaultSpotId"`
	Pairs         []PairConfig `json:"pairs" mapstructure:"pairs"`
}

// Point is a materialized anchor point. Its world pose follows the anchor.
type Point struct {
	spot  *Spot
	name  string
	local core.Pose
	alive bool
}

// WorldPose implements core.Target.
func (p *Point) WorldPose() (core.Pose, bool) {
	if p == nil || !p.alive {
		return core.Pose{}, false
	}
	return p.spot.pose.Compose(p.local), true
}

// Name returns the node name of the point, e.g. "PM_A_lunch/start".
func (p *Point) Name() string { return p.name }

type runtimePair struct {
	start, target *Point
}

// Spot is one anchor: its pairs, its raw and debounced tracking state and
// the pairs materialized while it is stably tracked.
type Spot struct {
	name          string
	defaultSpotID string
	pairs         []PairConfig
	order         []string

	pose       core.Pose
	trackedRaw bool
	state      core.TrackingState
	deadline   time.Time
	lastTier   core.ConfidenceTier

	currentSpotID string
	runtime       map[string]runtimePair
}

func newSpot(cfg Config) *Spot {
	s := &Spot{
		name:          cfg.Name,
		defaultSpotID: cfg.DefaultSpotID,
		pose:          core.NewPose(core.Vec3{}),
		currentSpotID: NoSpot,
		runtime:       make(map[string]runtimePair),
	}
	seen := make(map[string]bool)
	for _, p := range cfg.Pairs {
		if p.SpotID == "" {
			continue
		}
		key := strings.ToLower(p.SpotID)
		if seen[key] {
			continue
		}
		seen[key] = true
		p.Start = p.Start.Sanitized()
		p.Target = p.Target.Sanitized()
		s.pairs = append(s.pairs, p)
		s.order = append(s.order, p.SpotID)
	}
	return s
}

func (s *Spot) Name() string { return s.name }

// State returns the debounced tracking state.
func (s *Spot) State() core.TrackingState { return s.state }

// IsTracked reports the stable verdict. An anchor in PendingLoss is still tracked.
func (s *Spot) IsTracked() bool { return s.state != core.Untracked }

// RawTracked returns the latest raw observation after tier gating.
func (s *Spot) RawTracked() bool { return s.trackedRaw }

// LastTier returns the last raw tier reported for the anchor.
func (s *Spot) LastTier() core.ConfidenceTier { return s.lastTier }

// PendingLossDeadline returns the loss deadline while in PendingLoss.
func (s *Spot) PendingLossDeadline() (time.Time, bool) {
	if s.state != core.PendingLoss {
		return time.Time{}, false
	}
	return s.deadline, true
}

// CurrentSpotID returns the spot compared against the schedule id, or NoSpot.
func (s *Spot) CurrentSpotID() string { return s.currentSpotID }

// SpotIDs returns the declared spot ids in order.
func (s *Spot) SpotIDs() []string { return append([]string(nil), s.order...) }

// Pose returns the anchor world pose.
func (s *Spot) Pose() core.Pose { return s.pose }

// SetPose updates the anchor world pose. Materialized points move with it.
func (s *Spot) SetPose(p core.Pose) { s.pose = p }

// Pair returns the materialized pair for id. Only the current spot of a
// stably tracked anchor has a pair.
func (s *Spot) Pair(id string) (core.PosePair, bool) {
	if !s.IsTracked() || id == "" || !strings.EqualFold(id, s.currentSpotID) {
		return core.PosePair{}, false
	}
	rt, ok := s.runtime[strings.ToLower(s.currentSpotID)]
	if !ok || rt.start == nil || rt.target == nil {
		return core.PosePair{}, false
	}
	return core.PosePair{Start: rt.start, Target: rt.target}, true
}

// LivePair returns the pair of the current spot.
func (s *Spot) LivePair() (core.PosePair, bool) {
	return s.Pair(s.currentSpotID)
}

// SetActiveSpot switches the current spot.
func (s *Spot) SetActiveSpot(id string) error {
	if !s.IsTracked() {
		return fmt.Errorf("%s: %w", s.name, ErrNotTracked)
	}
	for _, known := range s.order {
		if strings.EqualFold(known, id) {
			s.currentSpotID = known
			return nil
		}
	}
	return fmt.Errorf("%s/%s: %w", s.name, id, ErrUnknownSpot)
}

// CycleNextSpot advances the current spot in declaration order and returns it.
func (s *Spot) CycleNextSpot() (string, error) {
	if !s.IsTracked() {
		return "", fmt.Errorf("%s: %w", s.name, ErrNotTracked)
	}
	if len(s.order) == 0 {
		return "", fmt.Errorf("%s: %w", s.name, ErrUnknownSpot)
	}
	idx := 0
	for i, id := range s.order {
		if strings.EqualFold(id, s.currentSpotID) {
			idx = i
			break
		}
	}
	s.currentSpotID = s.order[(idx+1)%len(s.order)]
	return s.currentSpotID, nil
}

func (s *Spot) spawnPairs() {
	s.runtime = make(map[string]runtimePair, len(s.pairs))
	for _, p := range s.pairs {
		s.runtime[strings.ToLower(p.SpotID)] = runtimePair{
			start:  &Point{spot: s, name: s.nodeName(p.SpotID, "start"), local: p.Start, alive: true},
			target: &Point{spot: s, name: s.nodeName(p.SpotID, "target"), local: p.Target, alive: true},
		}
	}
}

func (s *Spot) despawnPairs() {
	for _, rt := range s.runtime {
		rt.start.alive = false
		rt.target.alive = false
	}
	s.runtime = make(map[string]runtimePair)
}

func (s *Spot) activateDefaultSpot() {
	if s.defaultSpotID != "" {
		if _, ok := s.runtime[strings.ToLower(s.defaultSpotID)]; ok {
			for _, id := range s.order {
				if strings.EqualFold(id, s.defaultSpotID) {
					s.currentSpotID = id
					return
				}
			}
		}
	}
	if len(s.order) > 0 {
		s.currentSpotID = s.order[0]
		return
	}
	s.currentSpotID = NoSpot
}

func (s *Spot) nodeName(spotID, kind string) string {
	name := s.name
	if name == "" {
		name = "Image"
	}
	return fmt.Sprintf("PM_%s_%s/%s", name, spotID, kind)
}

// HasSpot reports whether id is one of the declared spot ids.
func (s *Spot) HasSpot(id string) bool {
	for _, known := range s.order {
		if strings.EqualFold(known, id) {
			return true
		}
	}
	return false
}
