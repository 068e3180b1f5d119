package channel

import "sync"

// Fanout publishes every value to all subscribers.
type Fanout[T any] struct {
	mu     sync.RWMutex
	subs   []Channel[T]
	closed bool
}

// NewFanout creates a fan-out with no subscribers.
func NewFanout[T any]() *Fanout[T] {
	return &Fanout[T]{}
}

// Subscribe registers a new subscriber channel of the given size.
func (f *Fanout[T]) Subscribe(size int) Receiver[T] {
	c := New[T](size)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		c.Close()
		return c
	}
	f.subs = append(f.subs, c)
	return c
}

// TrySend publishes v to every subscriber and reports whether all of them took it.
func (f *Fanout[T]) TrySend(v T) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return false
	}
	all := true
	for _, s := range f.subs {
		if !s.TrySend(v) {
			all = false
		}
	}
	return all
}

// Subscribers returns the number of subscribers.
func (f *Fanout[T]) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Close closes every subscriber channel.
func (f *Fanout[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, s := range f.subs {
		s.Close()
	}
	f.subs = nil
}
