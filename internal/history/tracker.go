// Package history keeps a bounded, deduplicated recency list alongside an
// unbounded frequency table. It backs both recent searches and mood usage.
package history

import (
	"errors"
	"slices"
	"sync"
)

const DefaultMaxRecent = 5

// ErrSnapshotNotFound is returned by stores that have no saved snapshot.
var ErrSnapshotNotFound = errors.New("history: snapshot not found")

type Entry struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	max    int
	recent []string
	counts map[string]int
	order  []string // first-seen order of counts keys
}

func NewTracker(max int) *Tracker {
	if max <= 0 {
		max = DefaultMaxRecent
	}
	return &Tracker{max: max, counts: map[string]int{}}
}

// Record moves item to the front of the recency list, evicting the oldest
// entry past capacity, and bumps its lifetime count.
func (t *Tracker) Record(item string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if i := slices.Index(t.recent, item); i >= 0 {
		t.recent = slices.Delete(t.recent, i, i+1)
	}
	t.recent = slices.Insert(t.recent, 0, item)
	if len(t.recent) > t.max {
		t.recent = t.recent[:t.max]
	}

	if _, ok := t.counts[item]; !ok {
		t.order = append(t.order, item)
	}
	t.counts[item]++
}

// Remove drops the recency entry at index. Out-of-range indexes are ignored.
// Counts are untouched.
func (t *Tracker) Remove(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index < 0 || index >= len(t.recent) {
		return
	}
	t.recent = slices.Delete(t.recent, index, index+1)
}

// Clear empties the recency list. Counts are untouched.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recent = nil
}

// Recent returns the recency list, newest first.
func (t *Tracker) Recent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string{}, t.recent...)
}

func (t *Tracker) Count(item string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[item]
}

// TopK returns the k most recorded items. Ties go to the item seen first.
func (t *Tracker) TopK(k int) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := make([]Entry, len(t.order))
	for i, item := range t.order {
		entries[i] = Entry{Item: item, Count: t.counts[item]}
	}
	slices.SortStableFunc(entries, func(a, b Entry) int { return b.Count - a.Count })

	if k < 0 {
		k = 0
	}
	if k < len(entries) {
		entries = entries[:k]
	}
	return entries
}

type Analytics struct {
	Total    int     `json:"total"`
	Unique   int     `json:"unique"`
	Frequent []Entry `json:"frequent"`
}

// Analytics summarises every recorded item, evicted or not.
func (t *Tracker) Analytics(k int) Analytics {
	top := t.TopK(k)

	t.mu.Lock()
	defer t.mu.Unlock()
	a := Analytics{Unique: len(t.order), Frequent: top}
	for _, n := range t.counts {
		a.Total += n
	}
	return a
}

// Snapshot is the plain-data form of a Tracker for persistence.
type Snapshot struct {
	Max    int      `json:"max"`
	Recent []string `json:"recent"`
	Counts []Entry  `json:"counts"`
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Max:    t.max,
		Recent: append([]string{}, t.recent...),
		Counts: make([]Entry, len(t.order)),
	}
	for i, item := range t.order {
		s.Counts[i] = Entry{Item: item, Count: t.counts[item]}
	}
	return s
}

// Restore replaces the tracker state with s. Counts keep their snapshot
// order so tie-breaking survives a round trip.
func (t *Tracker) Restore(s Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s.Max > 0 {
		t.max = s.Max
	}
	// A hand-edited snapshot may repeat items; keep the first, most recent one.
	t.recent = make([]string, 0, min(len(s.Recent), t.max))
	for _, item := range s.Recent {
		if len(t.recent) == t.max {
			break
		}
		if !slices.Contains(t.recent, item) {
			t.recent = append(t.recent, item)
		}
	}

	t.counts = make(map[string]int, len(s.Counts))
	t.order = t.order[:0]
	for _, e := range s.Counts {
		if _, ok := t.counts[e.Item]; !ok {
			t.order = append(t.order, e.Item)
		}
		t.counts[e.Item] += e.Count
	}
}
