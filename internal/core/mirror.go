package core

import "github.com/mikey-austin/echo_remote/pkg/remote"

// Mirror is the controller's copy of a player's state. It is owned by a
// single goroutine.
type Mirror struct {
	state   remote.PlayerState
	has     bool
	lastErr *remote.Error
}

// Apply folds msg into the mirror and reports whether the visible state
// changed. PlayerState replaces the snapshot; PositionUpdate and
// QueueUpdate patch it. Error is recorded and returns false.
func (m *Mirror) Apply(msg remote.Message) bool {
	switch v := msg.(type) {
	case remote.PlayerState:
		m.state = v
		m.has = true
		return true
	case remote.PositionUpdate:
		if !m.has {
			return false
		}
		m.state.Position = v.Position
		m.state.Duration = v.Duration
		return true
	case remote.QueueUpdate:
		if !m.has {
			return false
		}
		m.state.Queue = v.Queue
		m.state.CurrentIndex = v.CurrentIndex
		if v.CurrentIndex >= 0 && v.CurrentIndex < len(v.Queue) {
			track := v.Queue[v.CurrentIndex]
			m.state.CurrentTrack = &track
		} else {
			m.state.CurrentTrack = nil
		}
		return true
	case remote.Error:
		e := v
		m.lastErr = &e
		return false
	default:
		return false
	}
}

// State returns the mirrored snapshot.
func (m *Mirror) State() (remote.PlayerState, bool) {
	return m.state, m.has
}

// LastError returns the most recent Error from the player, if any.
func (m *Mirror) LastError() *remote.Error {
	return m.lastErr
}
