package enginecore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mikey-austin/echo_remote/pkg/remote"
)

type fakeClock struct {
	now atomic.Int64
}

func (c *fakeClock) NowMillis() int64 { return c.now.Load() }

func (c *fakeClock) advance(ms int64) { c.now.Add(ms) }

type fakeDriver struct {
	played  []string
	seekMS  int64
	volume  float64
	resumed int
	paused  int
	stopped int
}

func (d *fakeDriver) Play(track remote.Track, positionMS int64) error {
	d.played = append(d.played, track.ID)
	d.seekMS = positionMS
	return nil
}
func (d *fakeDriver) Pause() error  { d.paused++; return nil }
func (d *fakeDriver) Resume() error { d.resumed++; return nil }
func (d *fakeDriver) Stop() error   { d.stopped++; return nil }
func (d *fakeDriver) Seek(positionMS int64) error {
	d.seekMS = positionMS
	return nil
}
func (d *fakeDriver) SetVolume(volume float64) error {
	d.volume = volume
	return nil
}

func ms(v int64) *int64 { return &v }

func album() remote.MediaItem {
	return remote.MediaItem{
		Type:  remote.MediaAlbum,
		ID:    "album-1",
		Title: "Album",
		Tracks: []remote.Track{
			{ID: "t1", Title: "One", DurationMS: ms(10000)},
			{ID: "t2", Title: "Two", DurationMS: ms(20000)},
			{ID: "t3", Title: "Three", DurationMS: ms(30000)},
		},
	}
}

func newTestEngine() (*Engine, *fakeDriver, *fakeClock) {
	clk := &fakeClock{}
	clk.now.Store(1_000_000)
	driver := &fakeDriver{}
	return NewEngine(nil, driver, Options{Clock: clk}), driver, clk
}

func TestEnginePlayItemAndPosition(t *testing.T) {
	engine, driver, clk := newTestEngine()
	ctx := context.Background()

	if err := engine.PlayPause(ctx, true); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("expected queue empty, got %v", err)
	}
	if err := engine.PlayItem(ctx, album(), "local", true, false); err != nil {
		t.Fatalf("play item: %v", err)
	}
	if len(driver.played) != 1 || driver.played[0] != "t1" {
		t.Fatalf("expected t1 played, got %v", driver.played)
	}
	clk.advance(1500)
	st := engine.State()
	if !st.IsPlaying || st.Position != 1500 || st.Duration != 10000 {
		t.Fatalf("unexpected state %+v", st)
	}
	if st.ExtensionID == nil || *st.ExtensionID != "local" || st.CurrentTrack.ID != "t1" {
		t.Fatalf("unexpected current %+v", st)
	}
	if item, ok := engine.Context(); !ok || item.ID != "album-1" {
		t.Fatalf("expected media context")
	}

	if err := engine.PlayPause(ctx, false); err != nil {
		t.Fatalf("pause: %v", err)
	}
	clk.advance(5000)
	if got := engine.State().Position; got != 1500 {
		t.Fatalf("position moved while paused: %d", got)
	}
	if err := engine.PlayPause(ctx, true); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if driver.resumed != 1 {
		t.Fatalf("expected driver resume")
	}
}

func TestEngineSeekVolumeLike(t *testing.T) {
	engine, driver, _ := newTestEngine()
	ctx := context.Background()
	_ = engine.SetQueue(ctx, album().Tracks, 1, "local", nil)

	if err := engine.Seek(ctx, 1200); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if driver.seekMS != 1200 || engine.State().Position != 1200 {
		t.Fatalf("expected seek 1200")
	}
	if err := engine.SetVolume(ctx, 1.7); err != nil {
		t.Fatalf("volume: %v", err)
	}
	if driver.volume != 1 || engine.Volume() != 1 {
		t.Fatalf("expected clamped volume")
	}
	if err := engine.SetLiked(ctx, true); err != nil {
		t.Fatalf("like: %v", err)
	}
	if !engine.State().IsLiked {
		t.Fatalf("expected liked")
	}
	_ = engine.Next(ctx)
	if engine.State().IsLiked {
		t.Fatalf("like must follow the track")
	}
	if err := engine.SetRepeat(ctx, remote.RepeatMode(9)); err == nil {
		t.Fatalf("expected invalid repeat mode")
	}
}

func TestEnginePreviousRestartsPastThreshold(t *testing.T) {
	engine, driver, clk := newTestEngine()
	ctx := context.Background()
	_ = engine.SetQueue(ctx, album().Tracks, 1, "", nil)

	clk.advance(5000)
	if err := engine.Previous(ctx); err != nil {
		t.Fatalf("previous: %v", err)
	}
	st := engine.State()
	if st.CurrentIndex != 1 || st.Position != 0 {
		t.Fatalf("expected restart of current track, got %+v", st)
	}
	if err := engine.Previous(ctx); err != nil {
		t.Fatalf("previous: %v", err)
	}
	if engine.State().CurrentIndex != 0 || driver.played[len(driver.played)-1] != "t1" {
		t.Fatalf("expected move back to t1")
	}
}

func TestEngineAdvanceAfterEnd(t *testing.T) {
	engine, driver, clk := newTestEngine()
	ctx := context.Background()
	_ = engine.SetQueue(ctx, album().Tracks, 1, "", nil)

	clk.advance(20000)
	engine.AdvanceAfterEnd()
	if st := engine.State(); st.CurrentIndex != 2 || !st.IsPlaying {
		t.Fatalf("expected advance to t3, got %+v", st)
	}

	_ = engine.SetRepeat(ctx, remote.RepeatOne)
	clk.advance(30000)
	engine.AdvanceAfterEnd()
	if st := engine.State(); st.CurrentIndex != 2 || st.Position != 0 {
		t.Fatalf("expected replay of t3, got %+v", st)
	}

	_ = engine.SetRepeat(ctx, remote.RepeatOff)
	clk.advance(30000)
	engine.AdvanceAfterEnd()
	if st := engine.State(); st.IsPlaying {
		t.Fatalf("expected stop at end of queue, got %+v", st)
	}
	if driver.stopped == 0 {
		t.Fatalf("expected driver stop")
	}
}

func TestEngineQueueMutations(t *testing.T) {
	engine, _, _ := newTestEngine()
	ctx := context.Background()
	_ = engine.SetQueue(ctx, album().Tracks, 0, "", nil)

	if err := engine.AddToNext(ctx, remote.MediaItem{Type: remote.MediaTrack, ID: "n", Title: "Next"}, "", false); err != nil {
		t.Fatalf("add next: %v", err)
	}
	if err := engine.AddToQueue(ctx, remote.MediaItem{Type: remote.MediaPlaylist, ID: "p"}, "", false); !errors.Is(err, ErrNoTracks) {
		t.Fatalf("expected no tracks error, got %v", err)
	}
	if err := engine.MoveQueueItem(ctx, 1, 3); err != nil {
		t.Fatalf("move: %v", err)
	}
	st := engine.State()
	if len(st.Queue) != 4 || st.Queue[3].ID != "n" {
		t.Fatalf("unexpected queue %+v", st.Queue)
	}
	if err := engine.RemoveQueueItem(ctx, 3); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := engine.PlayQueueItem(ctx, 2); err != nil {
		t.Fatalf("jump: %v", err)
	}
	if engine.State().CurrentTrack.ID != "t3" {
		t.Fatalf("expected t3 current")
	}
	if err := engine.ClearQueue(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if st := engine.State(); st.IsPlaying || len(st.Queue) != 0 || st.CurrentTrack != nil {
		t.Fatalf("expected cleared engine, got %+v", st)
	}
}

func TestEngineSubscribeLatestWins(t *testing.T) {
	engine, _, _ := newTestEngine()
	ctx, cancel := context.WithCancel(context.Background())
	updates := engine.Subscribe(ctx)

	if first := <-updates; first.IsPlaying {
		t.Fatalf("expected initial stopped snapshot")
	}
	_ = engine.SetQueue(context.Background(), album().Tracks, 0, "", nil)
	_ = engine.SetShuffle(context.Background(), true)
	_ = engine.PlayPause(context.Background(), false)

	latest := <-updates
	if latest.IsPlaying || !latest.ShuffleMode {
		t.Fatalf("expected latest snapshot only, got %+v", latest)
	}

	cancel()
	select {
	case _, ok := <-updates:
		if ok {
			t.Fatalf("unexpected extra snapshot")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscription not closed")
	}
}
