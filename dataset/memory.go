package dataset

import (
	"context"
	"sync"
)

// Memory is an in-memory Dataset safe for concurrent use. The discipline is
// fixed at construction: FIFO for breadth-first traversal, LIFO for
// depth-first.
type Memory[T any] struct {
	mu    sync.Mutex
	items []T
	fifo  bool
}

// NewQueue builds a first-in first-out Memory store.
func NewQueue[T any]() *Memory[T] {
	return &Memory[T]{fifo: true}
}

// NewStack builds a last-in first-out Memory store.
func NewStack[T any]() *Memory[T] {
	return &Memory[T]{}
}

// Push appends an item.
func (m *Memory[T]) Push(_ context.Context, item T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item)
	return nil
}

// Pop removes the next item per the configured discipline.
func (m *Memory[T]) Pop(_ context.Context) (T, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	if len(m.items) == 0 {
		return zero, false, nil
	}
	var item T
	if m.fifo {
		item = m.items[0]
		m.items[0] = zero
		m.items = m.items[1:]
	} else {
		last := len(m.items) - 1
		item = m.items[last]
		m.items[last] = zero
		m.items = m.items[:last]
	}
	return item, true, nil
}

// Len returns the number of stored items.
func (m *Memory[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Set is an in-memory Dataset that guarantees at-most-once presence of a
// logically-equal item, keyed by the provided function. Pushing a key already
// present is a no-op, so seeding is idempotent.
type Set[T any] struct {
	mu      sync.Mutex
	items   []T
	present map[string]struct{}
	key     func(T) string
}

// NewSet builds a Set keyed by the given function.
func NewSet[T any](key func(T) string) *Set[T] {
	return &Set[T]{
		present: make(map[string]struct{}),
		key:     key,
	}
}

// Push inserts the item unless an equal item is already stored.
func (s *Set[T]) Push(_ context.Context, item T) error {
	k := s.key(item)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.present[k]; ok {
		return nil
	}
	s.present[k] = struct{}{}
	s.items = append(s.items, item)
	return nil
}

// Pop removes an arbitrary item (insertion order, as it happens).
func (s *Set[T]) Pop(_ context.Context) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if len(s.items) == 0 {
		return zero, false, nil
	}
	item := s.items[0]
	s.items[0] = zero
	s.items = s.items[1:]
	delete(s.present, s.key(item))
	return item, true, nil
}

// Len returns the number of stored items.
func (s *Set[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
