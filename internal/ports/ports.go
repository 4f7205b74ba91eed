package ports

import (
	"context"

	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// PlaybackEngine is the local player the remote commands drive.
type PlaybackEngine interface {
	// State returns the current snapshot with the position sampled now.
	State() remote.PlayerState
	// Subscribe delivers a snapshot after every observable change until ctx ends.
	Subscribe(ctx context.Context) <-chan remote.PlayerState

	PlayPause(ctx context.Context, playing bool) error
	Seek(ctx context.Context, positionMS int64) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	SetShuffle(ctx context.Context, enabled bool) error
	SetRepeat(ctx context.Context, mode remote.RepeatMode) error
	SetVolume(ctx context.Context, volume float64) error
	SetQueue(ctx context.Context, tracks []remote.Track, startIndex int, extensionID string, mediaContext *remote.MediaItem) error
	AddToQueue(ctx context.Context, item remote.MediaItem, extensionID string, loaded bool) error
	AddToNext(ctx context.Context, item remote.MediaItem, extensionID string, loaded bool) error
	PlayItem(ctx context.Context, item remote.MediaItem, extensionID string, loaded bool, shuffle bool) error
	RemoveQueueItem(ctx context.Context, position int) error
	MoveQueueItem(ctx context.Context, from int, to int) error
	ClearQueue(ctx context.Context) error
	PlayQueueItem(ctx context.Context, position int) error
	SetLiked(ctx context.Context, liked bool) error
}

// ExtensionRegistry answers which content extensions are installed locally.
type ExtensionRegistry interface {
	IsInstalled(id string) bool
	InstalledIDs() []string
}

// SettingsStore persists small string values by key.
type SettingsStore interface {
	Get(key string) (string, bool, error)
	Set(key string, value string) error
	Delete(key string) error
}

// Clock returns the current unix time in milliseconds.
type Clock interface {
	NowMillis() int64
}

// IDGen returns unique identifiers.
type IDGen interface {
	NewID() string
}

// DeviceFinder lists the players reachable from a controller.
type DeviceFinder interface {
	FindDevices(ctx context.Context) ([]remote.DeviceRecord, error)
}

// RemoteSession is an accepted session with a player.
type RemoteSession interface {
	Send(msg remote.Message) error
	// Messages delivers every inbound message after the handshake.
	Messages() <-chan remote.Message
	State() remote.ConnectionState
	// StateChanges returns a channel closed on the next state change.
	StateChanges() <-chan struct{}
	// Active reports whether the session can still reach Connected, which
	// stays true while the transport reconnects.
	Active() bool
	Close()
}

// Connector opens sessions to players.
type Connector interface {
	Connect(ctx context.Context, device remote.DeviceRecord) (RemoteSession, error)
}
