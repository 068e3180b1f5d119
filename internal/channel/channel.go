// Package channel carries values from the engine loop to observers
// without ever blocking the loop.
package channel

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender provides non-blocking write access to a channel.
type Sender[T any] interface {
	// TrySend delivers v without blocking and reports whether it was delivered.
	TrySend(v T) bool
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}
