package schedule

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidTime is returned for an unparsable schedule time string.
var ErrInvalidTime = errors.New("invalid time")

// Normalize wraps hour into [0,24).
func Normalize(hour float64) float64 {
	h := math.Mod(hour, 24)
	if h < 0 {
		h += 24
	}
	if h >= 24 {
		h = 0
	}
	return h
}

// ParseHour parses "HH:mm" or a float hour such as "13.5". The result is
// normalized into [0,24).
func ParseHour(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty: %w", ErrInvalidTime)
	}

	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) != 2 {
			return 0, fmt.Errorf("%q: %w", s, ErrInvalidTime)
		}
		h, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, fmt.Errorf("%q: %w", s, ErrInvalidTime)
		}
		m, err := strconv.Atoi(parts[1])
		if err != nil {
			return 0, fmt.Errorf("%q: %w", s, ErrInvalidTime)
		}
		return Normalize(float64(h) + float64(m)/60), nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidTime)
	}
	return Normalize(f), nil
}

// FormatHour renders an hour as "HH:MM".
func FormatHour(hour float64) string {
	total := int(math.Floor(Normalize(hour)*60 + 1e-9))
	return fmt.Sprintf("%02d:%02d", (total/60)%24, total%60)
}
