package projects

import (
	"bytes"
	"encoding/json"
)

// Collection holds a nested list that may be absent from a server payload.
// A missing collection and an empty one read the same through Items, but
// Present lets callers tell them apart.
type Collection[T any] struct {
	items   []T
	present bool
}

// Of returns a present collection holding items.
func Of[T any](items ...T) Collection[T] {
	return Collection[T]{items: append([]T(nil), items...), present: true}
}

// Items returns a copy of the elements; never nil.
func (c Collection[T]) Items() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Present reports whether the collection was supplied at all.
func (c Collection[T]) Present() bool { return c.present }

func (c Collection[T]) Len() int { return len(c.items) }

// Append returns a new present collection with v added at the end.
func (c Collection[T]) Append(v ...T) Collection[T] {
	out := make([]T, 0, len(c.items)+len(v))
	out = append(out, c.items...)
	out = append(out, v...)
	return Collection[T]{items: out, present: true}
}

// Filter returns the elements for which keep is true.
func (c Collection[T]) Filter(keep func(T) bool) Collection[T] {
	out := make([]T, 0, len(c.items))
	for _, it := range c.items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return Collection[T]{items: out, present: c.present}
}

// Map applies f to every element.
func (c Collection[T]) Map(f func(T) T) Collection[T] {
	if len(c.items) == 0 {
		return c
	}
	out := make([]T, len(c.items))
	for i, it := range c.items {
		out[i] = f(it)
	}
	return Collection[T]{items: out, present: c.present}
}

// UnmarshalJSON treats null like an absent field.
func (c *Collection[T]) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*c = Collection[T]{}
		return nil
	}
	var items []T
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	if items == nil {
		items = []T{}
	}
	*c = Collection[T]{items: items, present: true}
	return nil
}

// MarshalJSON always writes an array so cached snapshots decode total.
func (c Collection[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Items())
}
