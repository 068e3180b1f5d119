package main

import (
	"fmt"
	"log/slog"

	"github.com/MiaMao0615/AR-Accompanied/internal/clock"
	"github.com/MiaMao0615/AR-Accompanied/internal/config"
	"github.com/MiaMao0615/AR-Accompanied/internal/engine"
	"github.com/MiaMao0615/AR-Accompanied/internal/motion"
	"github.com/MiaMao0615/AR-Accompanied/internal/schedule"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

// engineDependencies assembles the loop collaborators from the loaded
// configuration. Recorder, Status and SessionID are left to the caller.
func engineDependencies(c clock.Clock, logger *slog.Logger) (engine.Dependencies, error) {
	engCfg := config.GetEngineConfig()
	trackCfg := config.GetTrackingConfig()
	motionCfg := config.GetMotionConfig()

	charCfg, err := config.GetCharacterConfig()
	if err != nil {
		return engine.Dependencies{}, err
	}
	clockCfg, err := config.GetClockConfig()
	if err != nil {
		return engine.Dependencies{}, err
	}
	records, err := config.GetScheduleRecords()
	if err != nil {
		return engine.Dependencies{}, err
	}
	anchors, err := config.GetAnchorConfigs()
	if err != nil {
		return engine.Dependencies{}, err
	}
	if len(anchors) == 0 {
		logger.Warn("No anchors configured, the character will stay at the fallback pose")
	}

	var fallback core.Target
	if config.HasFallback() {
		fallback = core.StaticTarget(charCfg.Fallback)
	} else {
		logger.Warn("No character.fallback configured, the character cannot spawn")
	}

	table := schedule.NewTable(records, logger)
	if len(table.Slices()) == 0 {
		logger.Warn("Schedule is empty, no anchor will ever match")
	}

	return engine.Dependencies{
		Clock:         c,
		Hours:         schedule.NewHourSource(c, clockCfg.Location, clockCfg.OffsetHours, clockCfg.FixedHour),
		Schedule:      table,
		Tracking:      trackCfg.DebounceOptions(),
		Anchors:       anchors,
		Fallback:      fallback,
		CharacterSize: charCfg.Scale,
		Motion: motion.Config{
			Defaults:           motionCfg.Profile,
			Timeout:            motionCfg.Timeout,
			FollowCopyRotation: motionCfg.FollowCopyRotation,
			FollowCopyScale:    motionCfg.FollowCopyScale,
		},
		Animator:         motion.LogAnimator{Logger: logger},
		Logger:           logger,
		TickRate:         engCfg.TickRate,
		ScheduleInterval: engCfg.ScheduleInterval,
		SampleInterval:   engCfg.SampleInterval,
		InboxSize:        engCfg.InboxSize,
	}, nil
}

// newEngine builds the loop for session s.
func newEngine(deps engine.Dependencies, s core.Session) (*engine.Engine, error) {
	deps.SessionID = s.ID
	e, err := engine.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, nil
}
