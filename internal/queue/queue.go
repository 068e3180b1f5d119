// Package queue provides the FIFO inbox that feeds the engine loop.
package queue

import (
	"errors"
	"sync"
)

// ErrFull is returned when pushing onto a queue that reached its limit.
var ErrFull = errors.New("queue full")

// Queue is a generic thread-safe FIFO. Producers on any goroutine push;
// a single consumer drains it on its own loop.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	limit  int
	signal chan struct{}
}

// New creates an empty queue. A limit <= 0 means unbounded.
func New[T any](limit int) *Queue[T] {
	return &Queue[T]{
		items:  make([]T, 0),
		limit:  limit,
		signal: make(chan struct{}, 1),
	}
}

// Push appends items in order. Either all items are queued or, if the
// limit would be exceeded, none are and ErrFull is returned.
func (q *Queue[T]) Push(items ...T) error {
	q.mu.Lock()
	if q.limit > 0 && len(q.items)+len(items) > q.limit {
		q.mu.Unlock()
		return ErrFull
	}
	q.items = append(q.items, items...)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// Pop removes and returns the first item.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Drain returns all queued items in arrival order and empties the queue.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := q.items
	q.items = make([]T, 0, cap(q.items))
	return result
}

// Signal fires at least once after items are pushed.
func (q *Queue[T]) Signal() <-chan struct{} { return q.signal }

// Empty returns true if the queue has no items.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear removes all items from the queue.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = q.items[:0]
}
