package dispatch

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/mikey-austin/echo_remote/pkg/remote"
)

type staticRegistry []string

func (r staticRegistry) IsInstalled(id string) bool {
	for _, installed := range r {
		if installed == id {
			return true
		}
	}
	return false
}

func (r staticRegistry) InstalledIDs() []string { return append([]string(nil), r...) }

type fakeEngine struct {
	state remote.PlayerState
	calls []string
	seeks []int64
	fail  error
}

func (e *fakeEngine) record(name string) error {
	e.calls = append(e.calls, name)
	return e.fail
}

func (e *fakeEngine) State() remote.PlayerState { return e.state }
func (e *fakeEngine) Subscribe(ctx context.Context) <-chan remote.PlayerState {
	return make(chan remote.PlayerState)
}
func (e *fakeEngine) PlayPause(ctx context.Context, playing bool) error { return e.record("playpause") }
func (e *fakeEngine) Seek(ctx context.Context, positionMS int64) error {
	e.seeks = append(e.seeks, positionMS)
	return e.record("seek")
}
func (e *fakeEngine) Next(ctx context.Context) error                { return e.record("next") }
func (e *fakeEngine) Previous(ctx context.Context) error            { return e.record("previous") }
func (e *fakeEngine) SetShuffle(ctx context.Context, on bool) error { return e.record("shuffle") }
func (e *fakeEngine) SetRepeat(ctx context.Context, mode remote.RepeatMode) error {
	return e.record("repeat")
}
func (e *fakeEngine) SetVolume(ctx context.Context, volume float64) error { return e.record("volume") }
func (e *fakeEngine) SetQueue(ctx context.Context, tracks []remote.Track, start int, ext string, mc *remote.MediaItem) error {
	return e.record("setqueue")
}
func (e *fakeEngine) AddToQueue(ctx context.Context, item remote.MediaItem, ext string, loaded bool) error {
	return e.record("addqueue")
}
func (e *fakeEngine) AddToNext(ctx context.Context, item remote.MediaItem, ext string, loaded bool) error {
	return e.record("addnext")
}
func (e *fakeEngine) PlayItem(ctx context.Context, item remote.MediaItem, ext string, loaded bool, shuffle bool) error {
	return e.record("playitem")
}
func (e *fakeEngine) RemoveQueueItem(ctx context.Context, pos int) error { return e.record("remove") }
func (e *fakeEngine) MoveQueueItem(ctx context.Context, from, to int) error {
	return e.record("move")
}
func (e *fakeEngine) ClearQueue(ctx context.Context) error          { return e.record("clear") }
func (e *fakeEngine) PlayQueueItem(ctx context.Context, pos int) error { return e.record("jump") }
func (e *fakeEngine) SetLiked(ctx context.Context, liked bool) error   { return e.record("like") }

func TestDispatchMissingExtension(t *testing.T) {
	engine := &fakeEngine{}
	d := NewDispatcher(nil, engine, NewValidator(nil, staticRegistry{"local"}))

	err := d.Dispatch(context.Background(), remote.PlayItem{Item: remote.MediaItem{Title: "x"}, ExtensionID: "X"})
	if !errors.Is(err, ErrExtensionNotFound) {
		t.Fatalf("expected ErrExtensionNotFound, got %v", err)
	}
	if len(engine.calls) != 0 {
		t.Fatalf("engine should not be called, got %v", engine.calls)
	}

	msg := ErrorFor(err)
	if msg.Code != remote.ErrorExtensionNotFound {
		t.Fatalf("unexpected code %s", msg.Code)
	}
	if msg.Message != "Extension 'X' not installed on this device" {
		t.Fatalf("unexpected message %q", msg.Message)
	}
	if msg.Details == nil || *msg.Details != "Missing extensions: X" {
		t.Fatalf("unexpected details %v", msg.Details)
	}

	for _, cmd := range []remote.Message{
		remote.AddToQueue{ExtensionID: "X"},
		remote.AddToNext{ExtensionID: "X"},
		remote.SetQueue{ExtensionID: "X"},
	} {
		if err := d.Dispatch(context.Background(), cmd); !errors.Is(err, ErrExtensionNotFound) {
			t.Fatalf("%s: expected extension error, got %v", cmd.Type(), err)
		}
	}
	if len(engine.calls) != 0 {
		t.Fatalf("engine should not be called, got %v", engine.calls)
	}
}

func TestDispatchMapsCommands(t *testing.T) {
	engine := &fakeEngine{}
	d := NewDispatcher(nil, engine, NewValidator(nil, staticRegistry{"local"}))
	ctx := context.Background()

	cmds := []remote.Message{
		remote.PlayPause{IsPlaying: true},
		remote.Seek{Position: 10},
		remote.Next{},
		remote.Previous{},
		remote.SetShuffleMode{Enabled: true},
		remote.SetRepeatMode{Mode: remote.RepeatOne},
		remote.VolumeChange{Volume: 0.3},
		remote.SetQueue{ExtensionID: "local"},
		remote.AddToQueue{ExtensionID: "local"},
		remote.AddToNext{ExtensionID: "local"},
		remote.PlayItem{ExtensionID: "local"},
		remote.RemoveQueueItem{Position: 1},
		remote.MoveQueueItem{FromPosition: 1, ToPosition: 0},
		remote.ClearQueue{},
		remote.PlayQueueItem{Position: 0},
		remote.LikeTrack{IsLiked: true},
	}
	for _, cmd := range cmds {
		if !IsCommand(cmd) {
			t.Fatalf("%s should be a command", cmd.Type())
		}
		if err := d.Dispatch(ctx, cmd); err != nil {
			t.Fatalf("%s: %v", cmd.Type(), err)
		}
	}
	want := []string{"playpause", "seek", "next", "previous", "shuffle", "repeat", "volume",
		"setqueue", "addqueue", "addnext", "playitem", "remove", "move", "clear", "jump", "like"}
	if !reflect.DeepEqual(engine.calls, want) {
		t.Fatalf("unexpected calls %v", engine.calls)
	}
}

func TestDispatchSeekRelativeClamps(t *testing.T) {
	engine := &fakeEngine{state: remote.PlayerState{Position: 5000, Duration: 60000}}
	d := NewDispatcher(nil, engine, nil)
	ctx := context.Background()

	_ = d.Dispatch(ctx, remote.SeekRelative{Delta: 10000})
	_ = d.Dispatch(ctx, remote.SeekRelative{Delta: -10000})
	_ = d.Dispatch(ctx, remote.SeekRelative{Delta: 120000})
	if !reflect.DeepEqual(engine.seeks, []int64{15000, 0, 60000}) {
		t.Fatalf("unexpected seeks %v", engine.seeks)
	}
}

func TestDispatchEngineFailure(t *testing.T) {
	engine := &fakeEngine{fail: errors.New("device busy")}
	d := NewDispatcher(nil, engine, nil)
	err := d.Dispatch(context.Background(), remote.Next{})
	if !errors.Is(err, ErrPlayback) {
		t.Fatalf("expected ErrPlayback, got %v", err)
	}
	if msg := ErrorFor(err); msg.Code != remote.ErrorPlayback {
		t.Fatalf("expected playback error code, got %s", msg.Code)
	}
}

func TestDispatchIgnoresNonCommands(t *testing.T) {
	engine := &fakeEngine{}
	d := NewDispatcher(nil, engine, nil)
	if IsCommand(remote.PlayerState{}) {
		t.Fatalf("state is not a command")
	}
	if err := d.Dispatch(context.Background(), remote.PositionUpdate{}); err != nil {
		t.Fatalf("expected ignore, got %v", err)
	}
	if len(engine.calls) != 0 {
		t.Fatalf("unexpected calls %v", engine.calls)
	}
}

func TestCheckCompatibility(t *testing.T) {
	got := CheckCompatibility([]string{"a", "b", "c"}, []string{"b", "c", "d"})
	want := Compatibility{
		Common:          []string{"b", "c"},
		MissingOnLocal:  []string{"d"},
		MissingOnRemote: []string{"a"},
		Compatible:      true,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected result %+v", got)
	}

	none := CheckCompatibility([]string{"a"}, []string{"b"})
	if none.Compatible || len(none.Common) != 0 {
		t.Fatalf("expected incompatible, got %+v", none)
	}
}
