package extensions

import (
	"sort"
	"strings"
	"sync"
)

// Static is an extension registry backed by a fixed id list, usually taken
// from configuration.
type Static struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewStatic creates a registry holding ids. Blank ids are skipped.
func NewStatic(ids ...string) *Static {
	s := &Static{ids: map[string]struct{}{}}
	for _, id := range ids {
		s.add(id)
	}
	return s
}

func (s *Static) add(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	s.ids[id] = struct{}{}
}

// IsInstalled reports whether id is registered.
func (s *Static) IsInstalled(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// InstalledIDs returns the sorted ids.
func (s *Static) InstalledIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Replace swaps the registered ids.
func (s *Static) Replace(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = map[string]struct{}{}
	for _, id := range ids {
		s.add(id)
	}
}
