// Package dataset defines the abstract store used for both the request
// frontier and result sinks, plus in-memory implementations with queue,
// stack, and set disciplines.
package dataset

import "context"

// Sink is the push-only subset of Dataset, satisfied by write-only stores
// such as object storage or message topics.
type Sink[T any] interface {
	// Push appends one item to the store.
	Push(ctx context.Context, item T) error
}

// Dataset is an ordered container of pending items. Implementations must
// support concurrent Push/Pop with single-operation atomicity.
type Dataset[T any] interface {
	Sink[T]

	// Pop removes and returns the next item per the store's discipline.
	// An empty store returns (zero, false, nil): emptiness is never an
	// error and never blocks.
	Pop(ctx context.Context) (T, bool, error)
}

// PushAll pushes every item, stopping at the first failure. Concrete stores
// only implement the single-item primitives; the bulk forms are derived here
// since Go interfaces carry no default methods.
func PushAll[T any](ctx context.Context, s Sink[T], items ...T) error {
	for _, item := range items {
		if err := s.Push(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// PopN pops up to n items, returning fewer when the store drains first.
func PopN[T any](ctx context.Context, d Dataset[T], n int) ([]T, error) {
	out := make([]T, 0, n)
	for len(out) < n {
		item, ok, err := d.Pop(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}
		out = append(out, item)
	}
	return out, nil
}

// Drain pops until the store reports empty.
func Drain[T any](ctx context.Context, d Dataset[T]) ([]T, error) {
	var out []T
	for {
		item, ok, err := d.Pop(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, item)
	}
}
