// Package ring provides a generic, thread-safe fixed-capacity ring buffer
// with a drop-oldest overflow policy.
//
// It backs the diagnostic recorder (last-N rejected inputs) and input
// components that need bounded backpressure queues.
package ring

import (
	"sync"
)

// DropCallback is called with each item evicted to make room for a newer one.
type DropCallback[T any] func(item T)

// Option configures a Ring using the functional options pattern.
type Option[T any] func(*Ring[T])

// WithDropCallback sets a callback invoked when an item is evicted.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(r *Ring[T]) {
		r.onDrop = callback
	}
}

// Ring is a fixed-capacity circular buffer. When full, writes evict the
// oldest item. All methods are safe for concurrent use.
type Ring[T any] struct {
	mu      sync.Mutex
	items   []T
	head    int // index of oldest item
	size    int
	written int64
	dropped int64
	onDrop  DropCallback[T]
}

// New creates a ring buffer with the given capacity. Capacity below 1 is
// raised to 1.
func New[T any](capacity int, options ...Option[T]) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	r := &Ring[T]{items: make([]T, capacity)}
	for _, opt := range options {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Write adds an item, evicting the oldest when full.
func (r *Ring[T]) Write(item T) {
	r.mu.Lock()
	var evicted T
	var didEvict bool

	if r.size == len(r.items) {
		evicted = r.items[r.head]
		didEvict = true
		r.items[r.head] = item
		r.head = (r.head + 1) % len(r.items)
		r.dropped++
	} else {
		r.items[(r.head+r.size)%len(r.items)] = item
		r.size++
	}
	r.written++
	onDrop := r.onDrop
	r.mu.Unlock()

	// Callback runs outside the lock so it may re-enter the ring.
	if didEvict && onDrop != nil {
		onDrop(evicted)
	}
}

// Read removes and returns the oldest item.
func (r *Ring[T]) Read() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	item := r.items[r.head]
	r.items[r.head] = zero
	r.head = (r.head + 1) % len(r.items)
	r.size--
	return item, true
}

// Snapshot returns the buffered items oldest-first without removing them.
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}

// Len returns the current number of buffered items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the buffer capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Written returns the total number of items ever written.
func (r *Ring[T]) Written() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Dropped returns the number of items evicted by overflow.
func (r *Ring[T]) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Clear removes all buffered items.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}
