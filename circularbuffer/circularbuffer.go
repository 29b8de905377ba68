// Package circularbuffer keeps the most recent N values.
package circularbuffer

import "sync"

type CircularBuffer[T any] struct {
	values   []T
	position int
	full     bool
	mu       sync.Mutex
}

func New[T any](size int) *CircularBuffer[T] {
	if size < 1 {
		size = 1
	}
	return &CircularBuffer[T]{
		values: make([]T, size),
	}
}

// Push adds element, overwriting the oldest one once the buffer is full.
func (cb *CircularBuffer[T]) Push(element T) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.values[cb.position] = element
	cb.position++

	if cb.position >= len(cb.values) {
		cb.position = 0
		cb.full = true
	}
}

// Update replaces the most recently pushed element. It does nothing on
// an empty buffer.
func (cb *CircularBuffer[T]) Update(fn func(*T)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.full && cb.position == 0 {
		return
	}
	last := cb.position - 1
	if last < 0 {
		last = len(cb.values) - 1
	}
	fn(&cb.values[last])
}

// Snapshot copies the elements out, oldest first.
func (cb *CircularBuffer[T]) Snapshot() []T {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.full {
		out := make([]T, cb.position)
		copy(out, cb.values[:cb.position])
		return out
	}

	out := make([]T, 0, len(cb.values))
	out = append(out, cb.values[cb.position:]...)
	out = append(out, cb.values[:cb.position]...)
	return out
}
