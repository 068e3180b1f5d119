package channel

import "sync"

// Buffered keeps the latest values. When full, TrySend evicts the oldest
// value so a slow reader always sees recent state.
type Buffered[T any] struct {
	mu sync.Mutex
	ch chan T
}

// NewBuffered creates a new buffered channel with the given size
func NewBuffered[T any](size int) *Buffered[T] {
	if size < 1 {
		size = 1
	}
	return &Buffered[T]{ch: make(chan T, size)}
}

// TrySend queues v, evicting the oldest value if the buffer is full.
func (b *Buffered[T]) TrySend(v T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		select {
		case b.ch <- v:
			return true
		default:
		}
		select {
		case <-b.ch:
		default:
		}
	}
}

// Receive returns the receive-only channel
func (b *Buffered[T]) Receive() <-chan T {
	return b.ch
}

// Len returns the number of items currently in the buffer
func (b *Buffered[T]) Len() int {
	return len(b.ch)
}

// Close closes the channel
func (b *Buffered[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	close(b.ch)
}
