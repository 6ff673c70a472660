// Package selection tracks which jobs are marked for a bulk action,
// independently of the page currently displayed.
package selection

import (
	"slices"
	"sync"
)

// Tracker is a concurrency-safe set of job ids.
type Tracker struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{ids: make(map[int64]struct{})}
}

// Toggle adds id when included is true and removes it otherwise.
func (t *Tracker) Toggle(id int64, included bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if included {
		t.ids[id] = struct{}{}
		return
	}
	delete(t.ids, id)
}

// SelectAllVisible replaces the selection with exactly ids.
func (t *Tracker) SelectAllVisible(ids []int64) {
	next := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	t.mu.Lock()
	t.ids = next
	t.mu.Unlock()
}

// Clear empties the selection.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.ids = make(map[int64]struct{})
	t.mu.Unlock()
}

// Contains reports whether id is selected.
func (t *Tracker) Contains(id int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.ids[id]
	return ok
}

// Len returns the number of selected ids.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ids)
}

// IDs returns the selected ids in ascending order.
func (t *Tracker) IDs() []int64 {
	t.mu.RLock()
	out := make([]int64, 0, len(t.ids))
	for id := range t.ids {
		out = append(out, id)
	}
	t.mu.RUnlock()
	slices.Sort(out)
	return out
}

// RetainAny clears the selection when none of its ids is in visible. It
// returns true when it cleared a non-empty selection. A selection with at
// least one visible id is kept whole, including ids that are not visible.
func (t *Tracker) RetainAny(visible []int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.ids) == 0 {
		return false
	}
	for _, id := range visible {
		if _, ok := t.ids[id]; ok {
			return false
		}
	}
	t.ids = make(map[int64]struct{})
	return true
}
