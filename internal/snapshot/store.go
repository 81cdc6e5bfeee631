package snapshot

import "sync/atomic"

// Store holds the currently published Snapshot.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Current returns the published snapshot, or nil before the first publish.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Swap publishes next and returns the snapshot it replaced.
func (s *Store) Swap(next *Snapshot) *Snapshot {
	return s.current.Swap(next)
}
