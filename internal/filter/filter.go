// Package filter provides the in-process filter source used by the
// preview server and tests. The engine only ever pulls filter state on
// demand; ownership stays with whoever mutates the source.
package filter

import "sync"

// Source is an id-set filter: active when a selection has been applied,
// matching exactly the selected feature ids.
type Source struct {
	mu       sync.Mutex
	active   bool
	ids      map[string]struct{}
	onChange []func()
}

// NewSource returns an inactive source matching nothing.
func NewSource() *Source {
	return &Source{ids: make(map[string]struct{})}
}

// Active reports whether a filter selection is in effect.
func (s *Source) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// MatchingIDs returns the current selection. The returned map is a
// snapshot; mutating it does not affect the source.
func (s *Source) MatchingIDs() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{}, len(s.ids))
	for id := range s.ids {
		out[id] = struct{}{}
	}
	return out
}

// Set replaces the selection and marks the filter active, then fires
// change notifications.
func (s *Source) Set(ids []string) {
	s.mu.Lock()
	s.ids = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	s.active = true
	fns := append([]func(){}, s.onChange...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Clear deactivates the filter, then fires change notifications.
func (s *Source) Clear() {
	s.mu.Lock()
	s.ids = make(map[string]struct{})
	s.active = false
	fns := append([]func(){}, s.onChange...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// OnFilterChanged registers a push notification for filter mutations.
func (s *Source) OnFilterChanged(fn func()) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}
