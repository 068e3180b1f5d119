package schedule

import (
	"time"

	"github.com/MiaMao0615/AR-Accompanied/internal/clock"
)

// HourSource reports the current hour of day in [0,24).
type HourSource interface {
	CurrentHour() float64
}

// WallClock reads hours from a clock in a given location, shifted by Offset hours.
type WallClock struct {
	Clock    clock.Clock
	Location *time.Location
	Offset   float64
}

// CurrentHour implements HourSource.
func (w WallClock) CurrentHour() float64 {
	now := w.Clock.Now()
	if w.Location != nil {
		now = now.In(w.Location)
	}
	h := float64(now.Hour()) + float64(now.Minute())/60 + float64(now.Second())/3600 +
		float64(now.Nanosecond())/3.6e12
	return Normalize(h + w.Offset)
}

// Fixed pins the hour.
type Fixed float64

// CurrentHour implements HourSource.
func (f Fixed) CurrentHour() float64 { return Normalize(float64(f)) }

// HourFunc adapts a function.
type HourFunc func() float64

// CurrentHour implements HourSource.
func (f HourFunc) CurrentHour() float64 { return Normalize(f()) }

// NewHourSource returns Fixed when fixedHour >= 0, else a WallClock.
func NewHourSource(c clock.Clock, loc *time.Location, offset, fixedHour float64) HourSource {
	if fixedHour >= 0 {
		return Fixed(fixedHour)
	}
	return WallClock{Clock: c, Location: loc, Offset: offset}
}
