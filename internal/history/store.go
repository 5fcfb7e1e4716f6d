// Package history holds the per-day occurrence table: one entry per
// distinct normalized message text, each carrying the instants the
// text was observed since the last eviction.
package history

import (
	"sync"
	"time"
)

// Table is the durable shape of the store: normalized text -> observation
// instants in admission order. Admission order is not guaranteed to be
// wall-clock sorted; callers that need chronological order sort a copy.
type Table map[string][]time.Time

// Store owns a Table behind a mutex. All writes come from one logical
// writer (the dedup engine); the mutex is the funnel that keeps I/O
// helpers and lookups safe against it.
type Store struct {
	mu    sync.Mutex
	table Table
}

func New() *Store {
	return &Store{table: Table{}}
}

// Lookup returns a copy of the key's occurrence list, nil if absent.
func (s *Store) Lookup(key string) []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.table[key]
	if !ok {
		return nil
	}
	cp := make([]time.Time, len(list))
	copy(cp, list)
	return cp
}

// Append records one observation of key at the given instant, creating
// the key if absent. Identical instants are kept; the same text typed
// twice in the same minute is two occurrences.
func (s *Store) Append(key string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table[key] = append(s.table[key], at)
}

// Evict removes every instant strictly before boundary and deletes
// keys left empty. It reports how many keys were removed and how many
// survive. Running it twice with the same boundary and no intervening
// Append is a no-op the second time.
func (s *Store) Evict(boundary time.Time) (removed, kept int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, list := range s.table {
		live := list[:0]
		for _, at := range list {
			if !at.Before(boundary) {
				live = append(live, at)
			}
		}
		if len(live) == 0 {
			delete(s.table, key)
			removed++
			continue
		}
		s.table[key] = live
		kept++
	}
	return removed, kept
}

// Snapshot returns a deep copy of the table for serialization.
func (s *Store) Snapshot() Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(Table, len(s.table))
	for key, list := range s.table {
		cp := make([]time.Time, len(list))
		copy(cp, list)
		out[key] = cp
	}
	return out
}

// Replace swaps in a previously loaded table. Used once at startup.
func (s *Store) Replace(t Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t == nil {
		t = Table{}
	}
	s.table = t
}

// Len returns the number of tracked keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.table)
}
