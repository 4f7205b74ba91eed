package core

import (
	"strconv"
	"strings"
	"time"

	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// Toggle resolves on|off|toggle against the current value.
func Toggle(arg string, current bool) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	case "", "toggle":
		return !current, nil
	default:
		return false, UsageError("expected on|off|toggle, got %q", arg)
	}
}

// PlayPause builds PlayPause for playing.
func PlayPause(playing bool) CommandFunc {
	return func(remote.PlayerState) (remote.Message, error) {
		return remote.PlayPause{IsPlaying: playing}, nil
	}
}

// TogglePlayback flips the transport state.
func TogglePlayback(state remote.PlayerState) (remote.Message, error) {
	return remote.PlayPause{IsPlaying: !state.IsPlaying}, nil
}

// Shuffle builds SetShuffleMode from on|off|toggle.
func Shuffle(arg string) CommandFunc {
	return func(state remote.PlayerState) (remote.Message, error) {
		enabled, err := Toggle(arg, state.ShuffleMode)
		if err != nil {
			return nil, err
		}
		return remote.SetShuffleMode{Enabled: enabled}, nil
	}
}

// Repeat builds SetRepeatMode from off|one|all, or cycles when arg is empty.
func Repeat(arg string) CommandFunc {
	return func(state remote.PlayerState) (remote.Message, error) {
		if strings.TrimSpace(arg) == "" {
			return remote.SetRepeatMode{Mode: (state.RepeatMode + 1) % 3}, nil
		}
		mode, err := remote.ParseRepeatMode(arg)
		if err != nil {
			return nil, UsageError("%v", err)
		}
		return remote.SetRepeatMode{Mode: mode}, nil
	}
}

// Like builds LikeTrack from on|off|toggle.
func Like(arg string) CommandFunc {
	return func(state remote.PlayerState) (remote.Message, error) {
		if state.CurrentTrack == nil {
			return nil, &CLIError{Code: ExitNotFound, Msg: "nothing is playing"}
		}
		liked, err := Toggle(arg, state.IsLiked)
		if err != nil {
			return nil, err
		}
		return remote.LikeTrack{IsLiked: liked}, nil
	}
}

// ParseVolume accepts a percentage 0-100, with or without a % suffix.
func ParseVolume(arg string) (remote.Message, error) {
	s := strings.TrimSuffix(strings.TrimSpace(arg), "%")
	pct, err := strconv.ParseFloat(s, 64)
	if err != nil || pct < 0 || pct > 100 {
		return nil, UsageError("volume must be 0-100, got %q", arg)
	}
	return remote.VolumeChange{Volume: pct / 100}, nil
}

// ParseSeek accepts an absolute position (90, 1:30, 1m30s) or a relative
// offset prefixed with + or -.
func ParseSeek(arg string) (remote.Message, error) {
	s := strings.TrimSpace(arg)
	if s == "" {
		return nil, UsageError("seek position required")
	}
	sign := int64(0)
	switch s[0] {
	case '+':
		sign = 1
		s = s[1:]
	case '-':
		sign = -1
		s = s[1:]
	}
	ms, err := parseClock(s)
	if err != nil {
		return nil, UsageError("invalid seek position %q", arg)
	}
	if sign != 0 {
		return remote.SeekRelative{Delta: sign * ms}, nil
	}
	return remote.Seek{Position: ms}, nil
}

// parseClock parses seconds, mm:ss, hh:mm:ss or a Go duration into ms.
func parseClock(s string) (int64, error) {
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return 0, strconv.ErrSyntax
		}
		var total int64
		for _, p := range parts {
			n, err := strconv.ParseInt(p, 10, 64)
			if err != nil || n < 0 {
				return 0, strconv.ErrSyntax
			}
			total = total*60 + n
		}
		return total * 1000, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs < 0 {
			return 0, strconv.ErrSyntax
		}
		return int64(secs * 1000), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, strconv.ErrSyntax
	}
	return d.Milliseconds(), nil
}

// QueueJump plays the entry at index.
func QueueJump(index int) CommandFunc {
	return func(state remote.PlayerState) (remote.Message, error) {
		if err := checkIndex(state, index); err != nil {
			return nil, err
		}
		return remote.PlayQueueItem{Position: index}, nil
	}
}

// QueueRemove removes the entry at index.
func QueueRemove(index int) CommandFunc {
	return func(state remote.PlayerState) (remote.Message, error) {
		if err := checkIndex(state, index); err != nil {
			return nil, err
		}
		return remote.RemoveQueueItem{Position: index}, nil
	}
}

// QueueMove moves the entry at from to to.
func QueueMove(from int, to int) CommandFunc {
	return func(state remote.PlayerState) (remote.Message, error) {
		if err := checkIndex(state, from); err != nil {
			return nil, err
		}
		if err := checkIndex(state, to); err != nil {
			return nil, err
		}
		return remote.MoveQueueItem{FromPosition: from, ToPosition: to}, nil
	}
}

func checkIndex(state remote.PlayerState, index int) error {
	if index < 0 || index >= len(state.Queue) {
		return &CLIError{Code: ExitNotFound, Msg: "queue index " + strconv.Itoa(index) + " out of range (queue has " + strconv.Itoa(len(state.Queue)) + " entries)"}
	}
	return nil
}
