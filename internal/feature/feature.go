// Package feature defines the immutable point model and the store that
// owns the full, unfiltered feature set.
package feature

import (
	"sync"

	"github.com/sells-group/mapsync/internal/geo"
)

// Kind distinguishes plain points from group markers.
type Kind int

const (
	// KindPoint is a single named location.
	KindPoint Kind = iota
	// KindGroup is a marker standing in for a named group of locations.
	KindGroup
)

// String returns the source-format name of the kind.
func (k Kind) String() string {
	if k == KindGroup {
		return "group"
	}
	return "point"
}

// KindFromString parses a source kind column; anything unrecognized is
// treated as a plain point.
func KindFromString(s string) Kind {
	if s == "group" {
		return KindGroup
	}
	return KindPoint
}

// Feature is a single named geographic point. Features are immutable
// once loaded; filtering always produces derived subsets, never edits.
type Feature struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Coord    geo.LngLat `json:"coord"`
	GroupKey string     `json:"group_key,omitempty"`
	Kind     Kind       `json:"kind"`
}

// Store holds every loaded feature in its natural load order. It is
// read-many/write-rare: Replace swaps the whole collection atomically,
// so readers always observe either the old set or the new one, never a
// partially populated intermediate.
type Store struct {
	mu    sync.RWMutex
	feats []Feature
	byID  map[string]int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{byID: make(map[string]int)}
}

// Replace swaps in a new feature set wholesale.
func (s *Store) Replace(feats []Feature) {
	next := make([]Feature, len(feats))
	copy(next, feats)
	idx := make(map[string]int, len(next))
	for i, f := range next {
		idx[f.ID] = i
	}
	s.mu.Lock()
	s.feats = next
	s.byID = idx
	s.mu.Unlock()
}

// All returns the current feature set in store order. The returned
// slice is a snapshot that is never mutated after publication; callers
// must treat it as read-only.
func (s *Store) All() []Feature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feats
}

// Get looks a feature up by id.
func (s *Store) Get(id string) (Feature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return Feature{}, false
	}
	return s.feats[i], true
}

// Len returns the number of loaded features.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.feats)
}
