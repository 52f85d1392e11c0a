package remoteconfig

import (
	"sync/atomic"
	"time"
)

// Snapshot is one accepted fetch result.
type Snapshot[T any] struct {
	Items     []T       `json:"items"`
	FetchedAt time.Time `json:"fetched_at"`
	Source    string    `json:"source"`
}

// Store holds the latest snapshot. Readers never block; a refresh replaces
// the whole snapshot at once.
type Store[T any] struct {
	current atomic.Pointer[Snapshot[T]]
}

// NewStore returns an empty store.
func NewStore[T any]() *Store[T] {
	return &Store[T]{}
}

// Load returns the latest snapshot, or false before the first successful
// refresh. The returned snapshot must not be modified.
func (s *Store[T]) Load() (*Snapshot[T], bool) {
	snap := s.current.Load()
	return snap, snap != nil
}

// Replace installs snap as the current snapshot.
func (s *Store[T]) Replace(snap Snapshot[T]) {
	items := make([]T, len(snap.Items))
	copy(items, snap.Items)
	snap.Items = items
	s.current.Store(&snap)
}
