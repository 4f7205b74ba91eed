package enginecore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/echo_remote/internal/adapters/clock"
	"github.com/mikey-austin/echo_remote/internal/ports"
	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// ErrNoTracks is returned when a media item carries nothing playable.
var ErrNoTracks = errors.New("media item has no tracks")

// restartThresholdMS is how far into a track Previous restarts it instead
// of moving back.
const restartThresholdMS = 3000

// Options configures the engine.
type Options struct {
	Clock ports.Clock
	// AdvanceInterval is how often Run checks for the end of a track.
	AdvanceInterval time.Duration
	ShuffleSeed     int64
	Volume          float64
}

// Engine is an in-memory playback engine: queue, transport state and a
// simulated position driven by the clock.
type Engine struct {
	log    *zap.Logger
	queue  *Queue
	driver Driver
	clock  ports.Clock
	opts   Options

	mu        sync.Mutex
	playing   bool
	loaded    bool
	baseMS    int64
	startedAt int64
	volume    float64
	liked     map[string]bool
	context   *remote.MediaItem
	subs      map[chan remote.PlayerState]struct{}
}

// NewEngine creates a stopped engine with an empty queue.
func NewEngine(log *zap.Logger, driver Driver, opts Options) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if driver == nil {
		driver = &NullDriver{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Clock{}
	}
	if opts.AdvanceInterval <= 0 {
		opts.AdvanceInterval = 250 * time.Millisecond
	}
	if opts.Volume <= 0 {
		opts.Volume = 1.0
	}
	return &Engine{
		log:    log,
		queue:  NewQueue(opts.ShuffleSeed),
		driver: driver,
		clock:  opts.Clock,
		opts:   opts,
		volume: opts.Volume,
		liked:  map[string]bool{},
		subs:   map[chan remote.PlayerState]struct{}{},
	}
}

// Queue exposes the underlying queue.
func (e *Engine) Queue() *Queue {
	return e.queue
}

// Volume returns the current volume.
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// Context returns the media item the queue was started from, if any.
func (e *Engine) Context() (remote.MediaItem, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.context == nil {
		return remote.MediaItem{}, false
	}
	return *e.context, true
}

// State returns the current snapshot with the position sampled now.
func (e *Engine) State() remote.PlayerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() remote.PlayerState {
	tracks, index := e.queue.Snapshot()
	st := remote.PlayerState{
		Position:     e.positionLocked(),
		IsPlaying:    e.playing,
		ShuffleMode:  e.queue.Shuffled(),
		RepeatMode:   e.queue.Repeat(),
		Queue:        tracks,
		CurrentIndex: index,
	}
	if entry, ok := e.queue.Current(); ok {
		track := entry.Track
		st.CurrentTrack = &track
		if entry.ExtensionID != "" {
			ext := entry.ExtensionID
			st.ExtensionID = &ext
		}
		if track.DurationMS != nil {
			st.Duration = *track.DurationMS
		}
		st.IsLiked = e.liked[track.ID]
	}
	if st.Duration > 0 && st.Position > st.Duration {
		st.Position = st.Duration
	}
	return st
}

func (e *Engine) positionLocked() int64 {
	if !e.playing {
		return e.baseMS
	}
	return e.baseMS + (e.clock.NowMillis() - e.startedAt)
}

// Subscribe delivers a snapshot after every change, starting with the
// current one. Slow readers only see the latest snapshot.
func (e *Engine) Subscribe(ctx context.Context) <-chan remote.PlayerState {
	ch := make(chan remote.PlayerState, 1)
	e.mu.Lock()
	e.subs[ch] = struct{}{}
	ch <- e.stateLocked()
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.mu.Lock()
		delete(e.subs, ch)
		close(ch)
		e.mu.Unlock()
	}()
	return ch
}

func (e *Engine) publishLocked() {
	st := e.stateLocked()
	for ch := range e.subs {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
}

// PlayPause resumes or pauses playback.
func (e *Engine) PlayPause(ctx context.Context, playing bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if playing == e.playing {
		return nil
	}
	if !playing {
		if err := e.driver.Pause(); err != nil {
			return err
		}
		e.baseMS = e.positionLocked()
		e.playing = false
		e.publishLocked()
		return nil
	}

	entry, ok := e.queue.Current()
	if !ok {
		return ErrQueueEmpty
	}
	if e.loaded {
		if err := e.driver.Resume(); err != nil {
			return err
		}
	} else if err := e.driver.Play(entry.Track, e.baseMS); err != nil {
		return err
	}
	e.loaded = true
	e.playing = true
	e.startedAt = e.clock.NowMillis()
	e.publishLocked()
	return nil
}

// Seek moves to an absolute position.
func (e *Engine) Seek(ctx context.Context, positionMS int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if positionMS < 0 {
		positionMS = 0
	}
	if err := e.driver.Seek(positionMS); err != nil {
		return err
	}
	e.baseMS = positionMS
	e.startedAt = e.clock.NowMillis()
	e.publishLocked()
	return nil
}

// Next skips to the next entry.
func (e *Engine) Next(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.queue.Next(); err != nil {
		return err
	}
	return e.playCurrentLocked()
}

// Previous restarts the current track when past the threshold, otherwise
// moves back one entry.
func (e *Engine) Previous(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loaded && e.positionLocked() > restartThresholdMS {
		if err := e.driver.Seek(0); err != nil {
			return err
		}
		e.baseMS = 0
		e.startedAt = e.clock.NowMillis()
		e.publishLocked()
		return nil
	}
	if _, err := e.queue.Prev(); err != nil {
		return err
	}
	return e.playCurrentLocked()
}

// SetShuffle toggles shuffle mode.
func (e *Engine) SetShuffle(ctx context.Context, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue.SetShuffle(enabled)
	e.publishLocked()
	return nil
}

// SetRepeat sets the repeat mode.
func (e *Engine) SetRepeat(ctx context.Context, mode remote.RepeatMode) error {
	switch mode {
	case remote.RepeatOff, remote.RepeatOne, remote.RepeatAll:
	default:
		return fmt.Errorf("invalid repeat mode %d", int(mode))
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue.SetRepeat(mode)
	e.publishLocked()
	return nil
}

// SetVolume sets the volume, clamped to [0, 1].
func (e *Engine) SetVolume(ctx context.Context, volume float64) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.driver.SetVolume(volume); err != nil {
		return err
	}
	e.volume = volume
	e.publishLocked()
	return nil
}

// SetQueue replaces the queue and starts playing at startIndex.
func (e *Engine) SetQueue(ctx context.Context, tracks []remote.Track, startIndex int, extensionID string, mediaContext *remote.MediaItem) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.queue.Set(toEntries(tracks, extensionID), startIndex); err != nil {
		return err
	}
	e.context = copyItem(mediaContext)
	if len(tracks) == 0 {
		return e.stopLocked()
	}
	return e.playCurrentLocked()
}

// AddToQueue appends the item's tracks.
func (e *Engine) AddToQueue(ctx context.Context, item remote.MediaItem, extensionID string, loaded bool) error {
	return e.add(item, extensionID, loaded, AtEnd)
}

// AddToNext inserts the item's tracks after the current entry.
func (e *Engine) AddToNext(ctx context.Context, item remote.MediaItem, extensionID string, loaded bool) error {
	return e.add(item, extensionID, loaded, AfterCurrent)
}

func (e *Engine) add(item remote.MediaItem, extensionID string, loaded bool, position Position) error {
	tracks, err := itemTracks(item, loaded)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue.Add(toEntries(tracks, extensionID), position)
	e.publishLocked()
	return nil
}

// PlayItem replaces the queue with the item's tracks and plays them.
func (e *Engine) PlayItem(ctx context.Context, item remote.MediaItem, extensionID string, loaded bool, shuffle bool) error {
	tracks, err := itemTracks(item, loaded)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.queue.Set(toEntries(tracks, extensionID), 0); err != nil {
		return err
	}
	if shuffle {
		e.queue.ShuffleAll()
	}
	e.context = copyItem(&item)
	return e.playCurrentLocked()
}

// RemoveQueueItem removes the entry at position.
func (e *Engine) RemoveQueueItem(ctx context.Context, position int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, hadCurrent := e.queue.Current()
	if err := e.queue.Remove(position); err != nil {
		return err
	}
	if e.queue.Len() == 0 {
		return e.stopLocked()
	}
	if next, ok := e.queue.Current(); hadCurrent && ok && next.Track.ID != current.Track.ID && e.loaded {
		return e.playCurrentLocked()
	}
	e.publishLocked()
	return nil
}

// MoveQueueItem moves an entry.
func (e *Engine) MoveQueueItem(ctx context.Context, from int, to int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.queue.Move(from, to); err != nil {
		return err
	}
	e.publishLocked()
	return nil
}

// ClearQueue empties the queue and stops playback.
func (e *Engine) ClearQueue(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue.Clear()
	e.context = nil
	return e.stopLocked()
}

// PlayQueueItem jumps to position and plays it.
func (e *Engine) PlayQueueItem(ctx context.Context, position int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.queue.Jump(position); err != nil {
		return err
	}
	return e.playCurrentLocked()
}

// SetLiked marks the current track.
func (e *Engine) SetLiked(ctx context.Context, liked bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.queue.Current()
	if !ok {
		return ErrQueueEmpty
	}
	if liked {
		e.liked[entry.Track.ID] = true
	} else {
		delete(e.liked, entry.Track.ID)
	}
	e.publishLocked()
	return nil
}

// Run advances the queue when the current track ends, until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.AdvanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.AdvanceAfterEnd()
		}
	}
}

// AdvanceAfterEnd moves on once the current track has played out.
func (e *Engine) AdvanceAfterEnd() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.playing {
		return
	}
	entry, ok := e.queue.Current()
	if !ok || entry.Track.DurationMS == nil || *entry.Track.DurationMS <= 0 {
		return
	}
	if e.positionLocked() < *entry.Track.DurationMS {
		return
	}

	if e.queue.Repeat() == remote.RepeatOne {
		if err := e.playCurrentLocked(); err != nil {
			e.log.Warn("replay failed", zap.Error(err))
		}
		return
	}
	if _, err := e.queue.Next(); err != nil {
		_ = e.driver.Stop()
		e.playing = false
		e.loaded = false
		e.baseMS = 0
		e.publishLocked()
		return
	}
	if err := e.playCurrentLocked(); err != nil {
		e.log.Warn("advance failed", zap.Error(err))
		_ = e.driver.Stop()
		e.playing = false
		e.publishLocked()
	}
}

func (e *Engine) playCurrentLocked() error {
	entry, ok := e.queue.Current()
	if !ok {
		return ErrQueueEmpty
	}
	if err := e.driver.Play(entry.Track, 0); err != nil {
		return err
	}
	e.loaded = true
	e.playing = true
	e.baseMS = 0
	e.startedAt = e.clock.NowMillis()
	e.log.Debug("playing", zap.String("track", entry.Track.ID), zap.String("title", entry.Track.Title))
	e.publishLocked()
	return nil
}

func (e *Engine) stopLocked() error {
	if err := e.driver.Stop(); err != nil {
		return err
	}
	e.playing = false
	e.loaded = false
	e.baseMS = 0
	e.publishLocked()
	return nil
}

func itemTracks(item remote.MediaItem, loaded bool) ([]remote.Track, error) {
	if len(item.Tracks) > 0 {
		return append([]remote.Track(nil), item.Tracks...), nil
	}
	if item.Type == remote.MediaTrack && item.ID != "" {
		return []remote.Track{{ID: item.ID, Title: item.Title, Extras: item.Extras}}, nil
	}
	if loaded {
		return nil, fmt.Errorf("%w: %s", ErrNoTracks, item.ID)
	}
	return nil, fmt.Errorf("%w: %s %s is not loaded", ErrNoTracks, item.Type, item.ID)
}

func toEntries(tracks []remote.Track, extensionID string) []QueueEntry {
	entries := make([]QueueEntry, 0, len(tracks))
	for _, track := range tracks {
		entries = append(entries, QueueEntry{Track: track, ExtensionID: extensionID})
	}
	return entries
}

func copyItem(item *remote.MediaItem) *remote.MediaItem {
	if item == nil {
		return nil
	}
	c := *item
	return &c
}
