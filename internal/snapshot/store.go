package snapshot

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/miradorstack/cycle-engine/internal/models"
)

// ErrStaleSnapshot is returned when a publish would replace a snapshot from the same or a later pass.
var ErrStaleSnapshot = errors.New("snapshot older than current")

// Listener is notified after each successful publish, in publish order.
type Listener func(models.Snapshot)

// Store holds the latest published snapshot. Readers never observe a partial pass.
type Store struct {
	current atomic.Pointer[models.Snapshot]

	mu        sync.Mutex
	listeners []Listener
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{}
}

// Publish swaps in s unless the current snapshot has the same or a higher Seq.
// Ordering ignores ComputedAt, so a wall clock stepping backwards cannot block a pass.
func (st *Store) Publish(s models.Snapshot) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if prev := st.current.Load(); prev != nil && s.Seq <= prev.Seq {
		return ErrStaleSnapshot
	}
	stored := s.Clone()
	st.current.Store(&stored)

	for _, l := range st.listeners {
		l(stored.Clone())
	}
	return nil
}

// Current returns a copy of the latest snapshot and whether one has been published.
func (st *Store) Current() (models.Snapshot, bool) {
	s := st.current.Load()
	if s == nil {
		return models.Snapshot{}, false
	}
	return s.Clone(), true
}

// Subscribe registers l for future publishes.
func (st *Store) Subscribe(l Listener) {
	if l == nil {
		return
	}
	st.mu.Lock()
	st.listeners = append(st.listeners, l)
	st.mu.Unlock()
}
