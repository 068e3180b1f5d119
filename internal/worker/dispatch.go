package worker

import (
	"fmt"

	"github.com/MiaMao0615/AR-Accompanied/internal/dispatcher"
)

// Commands of the presence protocol.
const (
	CmdTrackingStatus  = ":TRACKING:STATUS:"
	CmdTrackingChanged = ":TRACKING:CHANGED:"
	CmdAnchorPose      = ":ANCHOR:POSE:"
	CmdScheduleTick    = ":SCHEDULE:TICK:"
	CmdSpotSet         = ":SPOT:SET:"
	CmdSpotCycle       = ":SPOT:CYCLE:"
	CmdStatus          = ":STATUS:"
	CmdCurrentAnchor   = ":ANCHOR:CURRENT:"
	CmdMetric          = ":METRIC:"
)

// metricBufferSize bounds pending :METRIC: lines.
const metricBufferSize = 1000

// RegisterHandlers registers all command handlers with the dispatcher.
// Handlers stay synchronous: they only enqueue, and the engine inbox keeps
// arrival order across commands.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) error {
	regs := []struct {
		cmd  string
		h    dispatcher.HandlerFunc
		opts []dispatcher.Option
	}{
		{CmdTrackingStatus, m.handleTrackingStatus, []dispatcher.Option{dispatcher.MinArgs(2), dispatcher.Logged()}},
		{CmdTrackingChanged, m.handleTrackingChanged, []dispatcher.Option{dispatcher.MinArgs(1), dispatcher.Logged()}},
		{CmdAnchorPose, m.handleAnchorPose, []dispatcher.Option{dispatcher.MinArgs(2)}},
		{CmdScheduleTick, m.handleScheduleTick, []dispatcher.Option{dispatcher.Logged()}},
		{CmdSpotSet, m.handleSpotSet, []dispatcher.Option{dispatcher.MinArgs(2), dispatcher.Logged()}},
		{CmdSpotCycle, m.handleSpotCycle, []dispatcher.Option{dispatcher.MinArgs(1), dispatcher.Logged()}},
		{CmdStatus, m.handleStatus, nil},
		{CmdCurrentAnchor, m.handleCurrentAnchor, nil},
	}
	// metrics bypass the engine, so they may be buffered
	if m.deps.Metrics != nil {
		regs = append(regs, struct {
			cmd  string
			h    dispatcher.HandlerFunc
			opts []dispatcher.Option
		}{CmdMetric, m.handleMetric, []dispatcher.Option{dispatcher.MinArgs(2), dispatcher.Buffered(metricBufferSize)}})
	}
	for _, r := range regs {
		if err := d.Register(r.cmd, r.h, r.opts...); err != nil {
			return fmt.Errorf("registering %s: %w", r.cmd, err)
		}
	}
	return nil
}

func (m *Manager) handleTrackingStatus(e dispatcher.Event) (any, error) {
	obj, err := m.deps.ParserService.ParseTrackingStatus(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tracking status: %w", err)
	}
	if err := m.deps.Engine.NotifyTrackingStatus(obj.AnchorID, obj.Tier); err != nil {
		return nil, fmt.Errorf("failed to queue tracking status: %w", err)
	}
	return "queued", nil
}

func (m *Manager) handleTrackingChanged(e dispatcher.Event) (any, error) {
	id, err := m.deps.ParserService.ParseAnchorID(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tracking change: %w", err)
	}
	if err := m.deps.Engine.NotifyTrackingChanged(id); err != nil {
		return nil, fmt.Errorf("failed to queue tracking change: %w", err)
	}
	return "queued", nil
}

func (m *Manager) handleAnchorPose(e dispatcher.Event) (any, error) {
	obj, err := m.deps.ParserService.ParseAnchorPose(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse anchor pose: %w", err)
	}
	if err := m.deps.Engine.UpdateAnchorPose(obj.AnchorID, obj.Pose); err != nil {
		return nil, fmt.Errorf("failed to queue anchor pose: %w", err)
	}
	return "queued", nil
}

func (m *Manager) handleScheduleTick(e dispatcher.Event) (any, error) {
	if err := m.deps.Engine.NotifyScheduleTick(); err != nil {
		return nil, fmt.Errorf("failed to queue schedule tick: %w", err)
	}
	return "queued", nil
}

func (m *Manager) handleSpotSet(e dispatcher.Event) (any, error) {
	obj, err := m.deps.ParserService.ParseSpotSelection(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse spot selection: %w", err)
	}
	if err := m.deps.Engine.SetActiveSpot(obj.AnchorID, obj.SpotID); err != nil {
		return nil, fmt.Errorf("failed to queue spot selection: %w", err)
	}
	return "queued", nil
}

func (m *Manager) handleSpotCycle(e dispatcher.Event) (any, error) {
	id, err := m.deps.ParserService.ParseAnchorID(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse spot cycle: %w", err)
	}
	if err := m.deps.Engine.CycleNextSpot(id); err != nil {
		return nil, fmt.Errorf("failed to queue spot cycle: %w", err)
	}
	return "queued", nil
}

func (m *Manager) handleStatus(e dispatcher.Event) (any, error) {
	return m.deps.Engine.Status(), nil
}

func (m *Manager) handleCurrentAnchor(e dispatcher.Event) (any, error) {
	return m.deps.Engine.CurrentAnchorID(), nil
}

func (m *Manager) handleMetric(e dispatcher.Event) (any, error) {
	if err := m.deps.Metrics.WriteMetric(e.Args); err != nil {
		return nil, fmt.Errorf("failed to write metric: %w", err)
	}
	return "ok", nil
}
