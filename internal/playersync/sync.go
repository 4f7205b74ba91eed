package playersync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// DefaultTickInterval is the position update cadence while playing.
const DefaultTickInterval = time.Second

// StateSource is the part of the playback engine the synchronizer observes.
type StateSource interface {
	State() remote.PlayerState
	Subscribe(ctx context.Context) <-chan remote.PlayerState
}

// Broadcaster delivers outbound state messages to the connected controllers.
type Broadcaster interface {
	Broadcast(msg remote.Message)
}

// BroadcastFunc adapts a function to Broadcaster.
type BroadcastFunc func(msg remote.Message)

// Broadcast calls f.
func (f BroadcastFunc) Broadcast(msg remote.Message) { f(msg) }

// Multi fans every message out to each broadcaster in order.
func Multi(targets ...Broadcaster) Broadcaster {
	return BroadcastFunc(func(msg remote.Message) {
		for _, t := range targets {
			if t != nil {
				t.Broadcast(msg)
			}
		}
	})
}

// Options tunes the synchronizer.
type Options struct {
	TickInterval time.Duration
}

// Synchronizer turns engine snapshots into PlayerState, QueueUpdate and
// PositionUpdate broadcasts.
type Synchronizer struct {
	log    *zap.Logger
	source StateSource
	out    Broadcaster
	opts   Options

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	last    *remote.PlayerState
	running bool
}

// New creates a stopped synchronizer.
func New(log *zap.Logger, source StateSource, out Broadcaster, opts Options) *Synchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	return &Synchronizer{log: log, source: source, out: out, opts: opts}
}

// Running reports whether a sync loop is active.
func (s *Synchronizer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start begins observing the engine. Calling it while running warns.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("sync already active")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.running = true
	s.mu.Unlock()

	s.log.Info("starting player state synchronization")
	updates := s.source.Subscribe(loopCtx)
	go func() {
		defer close(done)
		s.loop(loopCtx, updates)
	}()
}

// Stop cancels the loop and its position ticker. No broadcast happens after
// Stop returns.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.done = nil
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()
	s.log.Info("stopped player state synchronization")
}

// Last returns the most recently broadcast snapshot.
func (s *Synchronizer) Last() (remote.PlayerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return remote.PlayerState{}, false
	}
	return *s.last, true
}

// BroadcastFullState sends the current engine snapshot as a PlayerState.
func (s *Synchronizer) BroadcastFullState() {
	st := s.source.State()
	s.remember(st)
	s.out.Broadcast(st)
}

type loopState struct {
	queue   []string
	index   int
	playing bool
	ticker  *time.Ticker
}

func (s *Synchronizer) loop(ctx context.Context, updates <-chan remote.PlayerState) {
	ls := &loopState{index: -1}
	defer func() {
		if ls.ticker != nil {
			ls.ticker.Stop()
		}
	}()

	for {
		var tick <-chan time.Time
		if ls.ticker != nil {
			tick = ls.ticker.C
		}
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			s.observe(ls, st)
		case <-tick:
			if ctx.Err() != nil {
				return
			}
			st := s.source.State()
			s.out.Broadcast(remote.PositionUpdate{Position: st.Position, Duration: st.Duration})
		}
	}
}

func (s *Synchronizer) observe(ls *loopState, st remote.PlayerState) {
	s.remember(st)
	s.out.Broadcast(st)

	if queueChanged(ls.queue, ls.index, st.Queue, st.CurrentIndex) {
		s.out.Broadcast(remote.QueueUpdate{Queue: st.Queue, CurrentIndex: st.CurrentIndex})
		ls.queue = trackIDs(st.Queue)
		ls.index = st.CurrentIndex
	}

	switch {
	case st.IsPlaying && !ls.playing:
		s.log.Debug("starting position updates")
		ls.ticker = time.NewTicker(s.opts.TickInterval)
	case !st.IsPlaying && ls.playing:
		s.log.Debug("stopping position updates")
		if ls.ticker != nil {
			ls.ticker.Stop()
			ls.ticker = nil
		}
	}
	ls.playing = st.IsPlaying
}

func (s *Synchronizer) remember(st remote.PlayerState) {
	s.mu.Lock()
	s.last = &st
	s.mu.Unlock()
}

// queueChanged reports whether the queue differs in size, current index or
// the identity of any entry.
func queueChanged(prev []string, prevIndex int, next []remote.Track, nextIndex int) bool {
	if len(prev) != len(next) || prevIndex != nextIndex {
		return true
	}
	for i, t := range next {
		if prev[i] != t.ID {
			return true
		}
	}
	return false
}

func trackIDs(tracks []remote.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.ID
	}
	return out
}
