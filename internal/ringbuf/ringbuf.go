// Package ringbuf provides a fixed-capacity ring that keeps the most recent
// values. Pushing into a full ring overwrites the oldest value.
//
// Ring is not safe for concurrent use; owners guard it with their own lock.
package ringbuf

// Ring is a bounded buffer of the last Cap() pushed values.
type Ring[T any] struct {
	buf  []T
	head int // index of the next write
	n    int

	// Evicted counts values overwritten because the ring was full.
	evicted uint64
}

// New creates a ring holding up to capacity values. Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push stores v as the newest value, evicting the oldest when full.
func (r *Ring[T]) Push(v T) {
	if r.n == len(r.buf) {
		r.evicted++
	} else {
		r.n++
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

// Newest returns a copy of the stored values, newest first.
func (r *Ring[T]) Newest() []T {
	out := make([]T, r.n)
	idx := r.head
	for i := 0; i < r.n; i++ {
		idx = (idx - 1 + len(r.buf)) % len(r.buf)
		out[i] = r.buf[idx]
	}
	return out
}

// Len returns the current number of values.
func (r *Ring[T]) Len() int { return r.n }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Evicted returns the total number of values dropped on overflow.
func (r *Ring[T]) Evicted() uint64 { return r.evicted }
