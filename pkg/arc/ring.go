// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package arc

// Ring is a fixed-capacity buffer addressed by index, oldest first.
type Ring[T any] struct {
	items []T
	head  int
	count int
}

// NewRing creates an empty ring holding at most capacity items
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v. It returns false, leaving the ring unchanged, when full.
func (r *Ring[T]) Push(v T) bool {
	if r.count == len(r.items) {
		return false
	}
	r.items[(r.head+r.count)%len(r.items)] = v
	r.count++
	return true
}

// At returns the i-th oldest item. It panics when i is out of range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.count {
		panic("arc: ring index out of range")
	}
	return r.items[(r.head+i)%len(r.items)]
}

// First returns the oldest item
func (r *Ring[T]) First() T { return r.At(0) }

// Last returns the newest item
func (r *Ring[T]) Last() T { return r.At(r.count - 1) }

// Len returns the number of items held
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the capacity
func (r *Ring[T]) Cap() int { return len(r.items) }

// Full reports whether Push would fail
func (r *Ring[T]) Full() bool { return r.count == len(r.items) }

// Clear drops every item
func (r *Ring[T]) Clear() {
	var zero T
	for i := 0; i < r.count; i++ {
		r.items[(r.head+i)%len(r.items)] = zero
	}
	r.head = 0
	r.count = 0
}
