package discovery

import (
	"sync"

	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// EventKind classifies browse events.
type EventKind int

const (
	Found EventKind = iota
	Lost
	ResolveFailed
)

func (k EventKind) String() string {
	switch k {
	case Found:
		return "found"
	case Lost:
		return "lost"
	case ResolveFailed:
		return "resolve_failed"
	default:
		return "unknown"
	}
}

// Event is produced by a Browser for every change it observes.
type Event struct {
	Kind   EventKind
	Record remote.DeviceRecord
	Err    error
}

// Registry is the de-duplicated set of discovered devices. Readers get
// copies; watchers get the latest snapshot after every change.
type Registry struct {
	mu       sync.Mutex
	self     string
	records  []remote.DeviceRecord
	watchers map[chan []remote.DeviceRecord]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{watchers: map[chan []remote.DeviceRecord]struct{}{}}
}

// SetSelf sets the name this process advertises; it is never recorded.
func (r *Registry) SetSelf(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.self = name
}

// Apply folds ev into the set and reports whether it changed.
func (r *Registry) Apply(ev Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	switch ev.Kind {
	case Found:
		changed = r.found(ev.Record)
	case Lost:
		changed = r.lost(ev.Record.Name)
	}
	if changed {
		r.publishLocked()
	}
	return changed
}

func (r *Registry) found(rec remote.DeviceRecord) bool {
	if rec.Name == "" || rec.Address == "" {
		return false
	}
	if r.self != "" && rec.Name == r.self {
		return false
	}
	for i, existing := range r.records {
		if existing.Name == rec.Name && existing.Address == rec.Address {
			if existing == rec {
				return false
			}
			r.records[i] = rec
			return true
		}
	}
	r.records = append(r.records, rec)
	return true
}

func (r *Registry) lost(name string) bool {
	kept := r.records[:0]
	removed := false
	for _, rec := range r.records {
		if rec.Name == name {
			removed = true
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return removed
}

// Devices returns a copy of the current set.
func (r *Registry) Devices() []remote.DeviceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyLocked()
}

// Clear removes every record.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == 0 {
		return
	}
	r.records = nil
	r.publishLocked()
}

// Watch returns a channel that receives the current set and then a fresh
// copy after every change. Slow readers only see the latest set.
func (r *Registry) Watch() (<-chan []remote.DeviceRecord, func()) {
	ch := make(chan []remote.DeviceRecord, 1)
	r.mu.Lock()
	r.watchers[ch] = struct{}{}
	ch <- r.copyLocked()
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.watchers, ch)
			r.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (r *Registry) copyLocked() []remote.DeviceRecord {
	out := make([]remote.DeviceRecord, len(r.records))
	copy(out, r.records)
	return out
}

func (r *Registry) publishLocked() {
	for ch := range r.watchers {
		snapshot := r.copyLocked()
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}
