package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mikey-austin/echo_remote/internal/ports"
	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// ErrPlayback wraps every failure reported by the playback engine.
var ErrPlayback = errors.New("playback failed")

// Dispatcher maps inbound commands onto the playback engine.
type Dispatcher struct {
	log       *zap.Logger
	engine    ports.PlaybackEngine
	validator *Validator
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(log *zap.Logger, engine ports.PlaybackEngine, validator *Validator) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{log: log, engine: engine, validator: validator}
}

// IsCommand reports whether msg is a playback or queue command.
func IsCommand(msg remote.Message) bool {
	switch msg.(type) {
	case remote.PlayPause, remote.Seek, remote.SeekRelative, remote.Next, remote.Previous,
		remote.SetShuffleMode, remote.SetRepeatMode, remote.VolumeChange,
		remote.SetQueue, remote.AddToQueue, remote.AddToNext, remote.PlayItem,
		remote.RemoveQueueItem, remote.MoveQueueItem, remote.ClearQueue, remote.PlayQueueItem,
		remote.LikeTrack:
		return true
	default:
		return false
	}
}

// Dispatch executes msg. Extension failures return an *ExtensionError and
// engine failures wrap ErrPlayback. Non-command messages are logged and
// ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, msg remote.Message) error {
	if d.validator != nil {
		if err := d.validator.ValidateCommand(msg); err != nil {
			return err
		}
	}

	var err error
	switch m := msg.(type) {
	case remote.PlayPause:
		d.log.Debug("play/pause command", zap.Bool("playing", m.IsPlaying))
		err = d.engine.PlayPause(ctx, m.IsPlaying)
	case remote.Seek:
		d.log.Debug("seek command", zap.Int64("position", m.Position))
		err = d.engine.Seek(ctx, m.Position)
	case remote.SeekRelative:
		state := d.engine.State()
		target := state.Position + m.Delta
		if state.Duration > 0 {
			target = clamp(target, 0, state.Duration)
		} else if target < 0 {
			target = 0
		}
		d.log.Debug("relative seek command", zap.Int64("delta", m.Delta), zap.Int64("target", target))
		err = d.engine.Seek(ctx, target)
	case remote.Next:
		d.log.Debug("next command")
		err = d.engine.Next(ctx)
	case remote.Previous:
		d.log.Debug("previous command")
		err = d.engine.Previous(ctx)
	case remote.SetShuffleMode:
		d.log.Debug("shuffle command", zap.Bool("enabled", m.Enabled))
		err = d.engine.SetShuffle(ctx, m.Enabled)
	case remote.SetRepeatMode:
		d.log.Debug("repeat command", zap.Stringer("mode", m.Mode))
		err = d.engine.SetRepeat(ctx, m.Mode)
	case remote.VolumeChange:
		d.log.Debug("volume command", zap.Float64("volume", m.Volume))
		err = d.engine.SetVolume(ctx, m.Volume)
	case remote.SetQueue:
		d.log.Debug("set queue command", zap.Int("tracks", len(m.Tracks)), zap.Int("start", m.StartIndex))
		err = d.engine.SetQueue(ctx, m.Tracks, m.StartIndex, m.ExtensionID, m.Context)
	case remote.PlayItem:
		d.log.Debug("play item command", zap.String("title", m.Item.Title), zap.String("extension", m.ExtensionID))
		err = d.engine.PlayItem(ctx, m.Item, m.ExtensionID, m.Loaded, m.Shuffle)
	case remote.AddToQueue:
		d.log.Debug("add to queue command", zap.String("title", m.Item.Title))
		err = d.engine.AddToQueue(ctx, m.Item, m.ExtensionID, m.Loaded)
	case remote.AddToNext:
		d.log.Debug("add to next command", zap.String("title", m.Item.Title))
		err = d.engine.AddToNext(ctx, m.Item, m.ExtensionID, m.Loaded)
	case remote.RemoveQueueItem:
		d.log.Debug("remove queue item command", zap.Int("position", m.Position))
		err = d.engine.RemoveQueueItem(ctx, m.Position)
	case remote.MoveQueueItem:
		d.log.Debug("move queue item command", zap.Int("from", m.FromPosition), zap.Int("to", m.ToPosition))
		err = d.engine.MoveQueueItem(ctx, m.FromPosition, m.ToPosition)
	case remote.ClearQueue:
		d.log.Debug("clear queue command")
		err = d.engine.ClearQueue(ctx)
	case remote.PlayQueueItem:
		d.log.Debug("play queue item command", zap.Int("position", m.Position))
		err = d.engine.PlayQueueItem(ctx, m.Position)
	case remote.LikeTrack:
		d.log.Debug("like command", zap.Bool("liked", m.IsLiked))
		err = d.engine.SetLiked(ctx, m.IsLiked)
	default:
		d.log.Warn("unhandled message type", zap.String("type", string(remote.TypeOf(msg))))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPlayback, msg.Type(), err)
	}
	return nil
}

// ErrorFor converts a Dispatch error into the protocol Error for the sender.
func ErrorFor(err error) remote.Error {
	var extErr *ExtensionError
	if errors.As(err, &extErr) {
		return extErr.Message()
	}
	if errors.Is(err, ErrPlayback) {
		return remote.ErrorMessage(remote.ErrorPlayback, err.Error(), "")
	}
	return remote.ErrorMessage(remote.ErrorUnknown, err.Error(), "")
}

func clamp(v, lo, hi int64) int64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
