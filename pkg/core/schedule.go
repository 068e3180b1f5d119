// pkg/core/schedule.go
package core

// TimeSlice is one schedule entry. Hours are in [0,24). Start > End wraps
// past midnight and Start == End is active all day.
type TimeSlice struct {
	ID        string  `json:"id"`
	StartHour float64 `json:"startHour"`
	EndHour   float64 `json:"endHour"`
}

// MotionProfile tunes the point-to-point run of one schedule id.
type MotionProfile struct {
	MoveSpeed        float64 `json:"moveSpeed"`
	ArriveThreshold  float64 `json:"arriveThreshold"`
	RotateSpeed      float64 `json:"rotateSpeed"`
	SmoothStop       bool    `json:"smoothStop"`
	MoveState        string  `json:"moveState"`
	ArriveState      string  `json:"arriveState"`
	ArriveOnBackward bool    `json:"arriveOnBackward"`
}
