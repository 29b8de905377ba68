package main

import "sync"

// CircularList is a looping cursor over a fixed set of values, used to
// step through patterns one at a time.
type CircularList[T comparable] struct {
	mu       sync.Mutex
	values   []T
	position int
}

func NewCircularList[T comparable](vs []T) *CircularList[T] {
	return &CircularList[T]{
		values:   vs,
		position: 0,
	}
}

// Current is the value the cursor is on.
func (cl *CircularList[T]) Current() T {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.position < len(cl.values) {
		return cl.values[cl.position]
	}

	var value T
	return value
}

// Advance moves to the next value and returns it.
func (cl *CircularList[T]) Advance() T {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if len(cl.values) == 0 {
		var value T
		return value
	}
	cl.position = (cl.position + 1) % len(cl.values)
	return cl.values[cl.position]
}

// Seek moves the cursor to v if it is in the list.
func (cl *CircularList[T]) Seek(v T) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	for i, value := range cl.values {
		if value == v {
			cl.position = i
			return true
		}
	}
	return false
}
