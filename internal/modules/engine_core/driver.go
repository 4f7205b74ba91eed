package enginecore

import (
	"sync"

	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// Driver executes playback actions.
type Driver interface {
	Play(track remote.Track, positionMS int64) error
	Pause() error
	Resume() error
	Stop() error
	Seek(positionMS int64) error
	SetVolume(volume float64) error
}

// NullDriver accepts every action without producing audio. The engine's
// clock stands in for the position.
type NullDriver struct {
	mu      sync.Mutex
	current string
}

func (d *NullDriver) Play(track remote.Track, positionMS int64) error {
	d.mu.Lock()
	d.current = track.ID
	d.mu.Unlock()
	return nil
}

func (d *NullDriver) Pause() error  { return nil }
func (d *NullDriver) Resume() error { return nil }

func (d *NullDriver) Stop() error {
	d.mu.Lock()
	d.current = ""
	d.mu.Unlock()
	return nil
}

func (d *NullDriver) Seek(positionMS int64) error    { return nil }
func (d *NullDriver) SetVolume(volume float64) error { return nil }

// Current returns the id of the loaded track.
func (d *NullDriver) Current() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}
