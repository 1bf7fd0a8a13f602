// Package cache provides the bounded, identity-keyed store shared by the
// streaming and pagination ingestion paths. All record-like history (executions,
// quotes, bars, alerts) goes through the same store so the memory bound is
// enforced uniformly.
package cache

import "sync"

// Entry is any value stored by identity.
type Entry interface {
	Key() string
}

// Store keeps at most one entry per key and tracks update order for eviction.
// Whole-value replacement: the newest upsert for a key is authoritative, there
// is no field-level merge. A batch applied via UpsertMany is atomic with
// respect to readers; the store may exceed capacity mid-batch but never across
// an observable state transition.
type Store[T Entry] struct {
	mu       sync.RWMutex
	items    map[string]T
	order    []string // keys, oldest update first
	max      int
	evicted  uint64
	upserted uint64
}

// New constructs a store bounded at max entries. A non-positive max disables
// eviction.
func New[T Entry](max int) *Store[T] {
	return &Store[T]{
		items: make(map[string]T),
		max:   max,
	}
}

// Upsert inserts or replaces the entry for its key and moves it to the newest
// position in update order, then evicts overflow.
func (s *Store[T]) Upsert(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(v)
	s.evictLocked(s.max)
}

// UpsertMany applies a batch under a single lock acquisition and evicts once
// at the end. Entries with an empty key are skipped. Returns the number of
// entries applied.
func (s *Store[T]) UpsertMany(vs []T) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	for _, v := range vs {
		if v.Key() == "" {
			continue
		}
		s.upsertLocked(v)
		applied++
	}
	s.evictLocked(s.max)
	return applied
}

// Get returns the entry for key, if present.
func (s *Store[T]) Get(key string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// All returns a copy of all entries in update order, oldest first.
func (s *Store[T]) All() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.items[key])
	}
	return out
}

// Len returns the number of stored entries.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// EvictOverflow removes oldest-by-update-order entries until the store holds
// at most max entries. Returns the number evicted.
func (s *Store[T]) EvictOverflow(max int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictLocked(max)
}

// Evictions returns the cumulative count of evicted entries.
func (s *Store[T]) Evictions() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evicted
}

// Upserts returns the cumulative count of applied upserts.
func (s *Store[T]) Upserts() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upserted
}

func (s *Store[T]) upsertLocked(v T) {
	key := v.Key()
	if _, exists := s.items[key]; exists {
		s.removeFromOrderLocked(key)
	}
	s.items[key] = v
	s.order = append(s.order, key)
	s.upserted++
}

func (s *Store[T]) evictLocked(max int) int {
	if max <= 0 {
		return 0
	}
	evicted := 0
	for len(s.order) > max {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.items, oldest)
		evicted++
	}
	s.evicted += uint64(evicted)
	return evicted
}

func (s *Store[T]) removeFromOrderLocked(key string) {
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
