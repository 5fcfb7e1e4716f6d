// Package seen guards against reprocessing the same underlying event
// within one day. The filter is cleared wholesale at every day
// rollover; the ceiling only bounds memory if rollovers are missed.
package seen

import "sync"

const defaultLimit = 2048

// Filter is a bounded set of event ids with insertion-order overflow.
// Which entries survive an overflow does not matter for correctness,
// only recency is a reasonable heuristic.
type Filter struct {
	mu    sync.Mutex
	limit int
	ids   map[string]struct{}
	order []string
}

func New(limit int) *Filter {
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Filter{
		limit: limit,
		ids:   make(map[string]struct{}, limit),
	}
}

// Add inserts id and reports whether it was new. Known ids are left
// untouched (their original insertion slot keeps its age).
func (f *Filter) Add(id string) bool {
	if id == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ids[id]; ok {
		return false
	}
	f.ids[id] = struct{}{}
	f.order = append(f.order, id)
	for len(f.ids) > f.limit {
		oldest := f.order[0]
		f.order = f.order[1:]
		delete(f.ids, oldest)
	}
	return true
}

// Contains reports whether id has been added since the last Clear.
func (f *Filter) Contains(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.ids[id]
	return ok
}

// Clear drops every entry. Called in lockstep with daily eviction.
func (f *Filter) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = make(map[string]struct{}, f.limit)
	f.order = f.order[:0]
}

// Len returns the current entry count.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ids)
}
