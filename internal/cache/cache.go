package cache

import "sync/atomic"

// Snapshot is a lock-free, read-optimized container holding an immutable
// value. The relay keeps its live configuration in one so a reload never
// blocks request handling.
type Snapshot[T any] struct{ v atomic.Pointer[T] }

func NewSnapshot[T any](initial T) *Snapshot[T] {
	s := &Snapshot[T]{}
	s.Store(initial)
	return s
}

// Load returns the stored value; ok is false if nothing was stored yet.
func (s *Snapshot[T]) Load() (value T, ok bool) {
	p := s.v.Load()
	if p == nil {
		return value, false
	}
	return *p, true
}

// Store atomically swaps in the new value.
func (s *Snapshot[T]) Store(v T) {
	s.v.Store(&v)
}
