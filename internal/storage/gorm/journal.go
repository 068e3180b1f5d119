package gormstorage

import (
	"fmt"

	"github.com/MiaMao0615/AR-Accompanied/internal/model"
	"github.com/MiaMao0615/AR-Accompanied/internal/model/convert"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
	"gorm.io/gorm"
)

// LatestSessionID returns the most recently started session.
func LatestSessionID(db *gorm.DB) (uint, error) {
	var s model.Session
	if err := db.Order("id desc").First(&s).Error; err != nil {
		return 0, fmt.Errorf("error getting latest session: %w", err)
	}
	return s.ID, nil
}

// LoadJournal reads a whole session back into core types, ordered by time
// of recording.
func LoadJournal(db *gorm.DB, sessionID uint) (*core.Journal, error) {
	var s model.Session
	if err := db.First(&s, sessionID).Error; err != nil {
		return nil, fmt.Errorf("error getting session %d: %w", sessionID, err)
	}

	j := &core.Journal{Session: convert.SessionToCore(s)}

	var changes []model.TrackingChange
	if err := db.Where("session_id = ?", sessionID).Order("id").Find(&changes).Error; err != nil {
		return nil, fmt.Errorf("error getting tracking changes: %w", err)
	}
	for _, c := range changes {
		j.TrackingChanges = append(j.TrackingChanges, convert.TrackingChangeToCore(c))
	}

	var transitions []model.MatchTransition
	if err := db.Where("session_id = ?", sessionID).Order("id").Find(&transitions).Error; err != nil {
		return nil, fmt.Errorf("error getting match transitions: %w", err)
	}
	for _, m := range transitions {
		j.Transitions = append(j.Transitions, convert.MatchTransitionToCore(m))
	}

	var events []model.MotionEvent
	if err := db.Where("session_id = ?", sessionID).Order("id").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("error getting motion events: %w", err)
	}
	for _, e := range events {
		j.MotionEvents = append(j.MotionEvents, convert.MotionEventToCore(e))
	}

	var samples []model.PoseSample
	if err := db.Where("session_id = ?", sessionID).Order("id").Find(&samples).Error; err != nil {
		return nil, fmt.Errorf("error getting pose samples: %w", err)
	}
	for _, p := range samples {
		j.PoseSamples = append(j.PoseSamples, convert.PoseSampleToCore(p))
	}

	return j, nil
}
