package graph

import "iter"

// Stream is a one-shot, lazily evaluated sequence of results. Once consumed
// it yields nothing further; a second pass sees an empty stream.
//
//	for s.Next() {
//	    use(s.Value())
//	}
//	if err := s.Err(); err != nil { ... }
type Stream[T any] struct {
	next func() (T, bool, error)
	cur  T
	err  error
	done bool
}

// NewStream wraps a producer. next returns the following item, false when
// the sequence is exhausted, or an error that ends the stream.
func NewStream[T any](next func() (T, bool, error)) *Stream[T] {
	return &Stream[T]{next: next}
}

// EmptyStream returns an exhausted stream.
func EmptyStream[T any]() *Stream[T] {
	return &Stream[T]{done: true}
}

// Next advances to the following item.
func (s *Stream[T]) Next() bool {
	if s.done {
		return false
	}

	item, ok, err := s.next()
	if err != nil || !ok {
		var zero T
		s.cur = zero
		s.err = err
		s.done = true
		s.next = nil
		return false
	}

	s.cur = item
	return true
}

// Value returns the current item.
func (s *Stream[T]) Value() T {
	return s.cur
}

// Err returns the error that ended the stream, if any.
func (s *Stream[T]) Err() error {
	return s.err
}

// All returns the remaining items as an iterator. Check Err afterwards.
func (s *Stream[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for s.Next() {
			if !yield(s.Value()) {
				return
			}
		}
	}
}

// Collect drains the stream into a slice.
func (s *Stream[T]) Collect() ([]T, error) {
	var out []T
	for s.Next() {
		out = append(out, s.Value())
	}
	return out, s.Err()
}
