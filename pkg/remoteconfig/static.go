package remoteconfig

import (
	"context"
	"sync"
)

// StaticSource returns a fixed outcome. It is useful for tests and for
// running without a remote endpoint.
type StaticSource[T any] struct {
	mu    sync.Mutex
	items []T
	ok    bool
	err   error
	calls int
}

var _ Source[InteractionConfig] = (*StaticSource[InteractionConfig])(nil)

// NewStaticSource returns a source that always yields items.
func NewStaticSource[T any](items []T) *StaticSource[T] {
	s := &StaticSource[T]{}
	s.Set(items, true, nil)
	return s
}

// Set replaces the outcome returned by later fetches.
func (s *StaticSource[T]) Set(items []T, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items, s.ok, s.err = items, ok, err
}

// Calls reports how many times Fetch ran.
func (s *StaticSource[T]) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Name implements Source.
func (s *StaticSource[T]) Name() string {
	return "static"
}

// Fetch implements Source.
func (s *StaticSource[T]) Fetch(ctx context.Context) ([]T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if s.err != nil || !s.ok {
		return nil, false, s.err
	}
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out, true, nil
}
