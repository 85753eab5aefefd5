// Package ring provides a lock-free single producer single consumer ring
// used to hand data from interrupt context to the loop.
package ring

import (
	"sync/atomic"
)

// Ring is a bounded SPSC queue. Push must only be called by the producer
// and Pop by the consumer.
type Ring[T any] struct {
	buf  []T
	mask uint32
	head atomic.Uint32
	tail atomic.Uint32

	dropped atomic.Uint32
}

// New creates a Ring holding at least size elements.
func New[T any](size int) *Ring[T] {
	n := 1
	for n < size {
		n <<= 1
	}
	return &Ring[T]{buf: make([]T, n), mask: uint32(n - 1)}
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Len returns the number of queued elements.
func (r *Ring[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Push enqueues v, it returns false and counts a drop when full.
func (r *Ring[T]) Push(v T) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() >= uint32(len(r.buf)) {
		r.dropped.Add(1)
		return false
	}
	r.buf[tail&r.mask] = v
	r.tail.Store(tail + 1)
	return true
}

// Pop dequeues the oldest element.
func (r *Ring[T]) Pop() (v T, ok bool) {
	head := r.head.Load()
	if head == r.tail.Load() {
		return
	}
	v = r.buf[head&r.mask]
	var zero T
	r.buf[head&r.mask] = zero
	r.head.Store(head + 1)
	return v, true
}

// Dropped returns and resets the number of dropped elements.
func (r *Ring[T]) Dropped() uint32 {
	return r.dropped.Swap(0)
}
