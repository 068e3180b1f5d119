package motion

import (
	"time"

	"github.com/MiaMao0615/AR-Accompanied/internal/geo"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

const maxTrailPoints = 512

type outcome int

const (
	running outcome = iota
	arrived
	timedOut
)

// job is one point-to-point run. It carries the token it was issued under
// and never touches another job.
type job struct {
	token      uint64
	scheduleID string
	forward    bool
	from, to   core.Vec3
	target     core.Target
	profile    core.MotionProfile
	elapsed    time.Duration
	trail      []core.Vec3
}

// step advances pose by one tick toward the destination captured at kickoff.
func (j *job) step(pose core.Pose, dt, timeout time.Duration) (core.Pose, outcome) {
	j.elapsed += dt

	toDir := j.to.Sub(pose.Position)
	dist := toDir.Len()
	if dist <= j.profile.ArriveThreshold {
		return pose, arrived
	}
	if timeout > 0 && j.elapsed >= timeout {
		return pose, timedOut
	}

	secs := dt.Seconds()
	if toDir.LenSq() > 1e-6 {
		look := geo.LookRotation(toDir.Normalized(), core.Up)
		pose.Rotation = geo.Slerp(pose.Rotation, look, secs*j.profile.RotateSpeed)
	}

	speed := j.profile.MoveSpeed
	if j.profile.SmoothStop {
		speed *= geo.SmoothStopFactor(dist)
	}
	pose.Position = geo.MoveTowards(pose.Position, j.to, speed*secs)

	if len(j.trail) < maxTrailPoints {
		j.trail = append(j.trail, pose.Position)
	}
	return pose, running
}

func (j *job) direction() string {
	if j.forward {
		return core.MotionForward
	}
	return core.MotionReverse
}
