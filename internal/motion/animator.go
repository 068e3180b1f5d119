package motion

import "log/slog"

// Animator plays named animation states on the character.
type Animator interface {
	Play(state string)
}

// AnimatorFunc adapts a function to Animator.
type AnimatorFunc func(state string)

func (f AnimatorFunc) Play(state string) { f(state) }

// LogAnimator only records which state would be played.
type LogAnimator struct {
	Logger *slog.Logger
}

func (a LogAnimator) Play(state string) {
	if state == "" {
		return
	}
	l := a.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Debug("play animation state", "state", state)
}
