package remote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"
)

// ErrMalformedMessage matches every decode failure.
var ErrMalformedMessage = errors.New("malformed message")

// MalformedMessageError describes why a frame could not be decoded.
type MalformedMessageError struct {
	Type   MessageType
	Reason string
	Err    error
}

func (e *MalformedMessageError) Error() string {
	msg := "malformed message"
	if e.Type != "" {
		msg += " " + string(e.Type)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedMessageError) Unwrap() error { return e.Err }

// Is reports whether target is ErrMalformedMessage.
func (e *MalformedMessageError) Is(target error) bool {
	return target == ErrMalformedMessage
}

type nullableFields interface{ nullable() []string }

type wireNormalizer interface{ wire() Message }

var jsonNull = []byte("null")

var nowMillis = func() int64 { return time.Now().UnixMilli() }

type decoder func(data []byte) (Message, error)

func variant[T Message](defaults func() T) decoder {
	return func(data []byte) (Message, error) {
		v := defaults()
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func zero[T Message]() T {
	var v T
	return v
}

var registry = map[MessageType]decoder{
	TypeConnectionRequest:  variant(zero[ConnectionRequest]),
	TypeConnectionResponse: variant(zero[ConnectionResponse]),
	TypeDisconnect: variant(func() Disconnect {
		return Disconnect{Reason: DefaultDisconnectReason}
	}),
	TypePing:            variant(func() Ping { return Ping{Timestamp: nowMillis()} }),
	TypePong:            variant(func() Pong { return Pong{Timestamp: nowMillis()} }),
	TypePlayPause:       variant(zero[PlayPause]),
	TypeSeek:            variant(zero[Seek]),
	TypeSeekRelative:    variant(zero[SeekRelative]),
	TypeNext:            variant(zero[Next]),
	TypePrevious:        variant(zero[Previous]),
	TypeSetShuffleMode:  variant(zero[SetShuffleMode]),
	TypeSetRepeatMode:   variant(zero[SetRepeatMode]),
	TypeVolumeChange:    variant(zero[VolumeChange]),
	TypeSetQueue:        variant(zero[SetQueue]),
	TypeAddToQueue:      variant(zero[AddToQueue]),
	TypeAddToNext:       variant(zero[AddToNext]),
	TypePlayItem:        variant(zero[PlayItem]),
	TypeRemoveQueueItem: variant(zero[RemoveQueueItem]),
	TypeMoveQueueItem:   variant(zero[MoveQueueItem]),
	TypeClearQueue:      variant(zero[ClearQueue]),
	TypePlayQueueItem:   variant(zero[PlayQueueItem]),
	TypePlayerState:     variant(zero[PlayerState]),
	TypeQueueUpdate:     variant(zero[QueueUpdate]),
	TypePositionUpdate:  variant(zero[PositionUpdate]),
	TypeLikeTrack:       variant(zero[LikeTrack]),
	TypeError:           variant(zero[Error]),
}

// MessageTypes returns every registered discriminator in sorted order.
func MessageTypes() []MessageType {
	out := make([]MessageType, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TypeOf returns the discriminator of msg, or "" for nil.
func TypeOf(msg Message) MessageType {
	if msg == nil {
		return ""
	}
	return msg.Type()
}

// NewPing builds a Ping stamped with the current time.
func NewPing() Ping {
	return Ping{Timestamp: nowMillis()}
}

// Encode renders msg as a single JSON object with a "type" discriminator.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("encode: nil message")
	}
	if n, ok := msg.(wireNormalizer); ok {
		msg = n.wire()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	tag, err := json.Marshal(string(msg.Type()))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(tag) + 10)
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Decode parses one frame into its variant, applying field defaults.
func Decode(data []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &MalformedMessageError{Reason: "not a JSON object", Err: err}
	}
	if fields == nil {
		return nil, &MalformedMessageError{Reason: "not a JSON object"}
	}
	rawType, ok := fields["type"]
	if !ok {
		return nil, &MalformedMessageError{Reason: "missing type"}
	}
	var tag string
	if err := json.Unmarshal(rawType, &tag); err != nil {
		return nil, &MalformedMessageError{Reason: "type must be a string", Err: err}
	}
	typ := MessageType(tag)
	decode, ok := registry[typ]
	if !ok {
		return nil, &MalformedMessageError{Type: typ, Reason: "unknown type"}
	}
	msg, err := decode(data)
	if err != nil {
		return nil, &MalformedMessageError{Type: typ, Reason: "field type mismatch", Err: err}
	}
	var nullable []string
	if n, ok := msg.(nullableFields); ok {
		nullable = n.nullable()
	}
	for _, name := range msg.required() {
		raw, ok := fields[name]
		if !ok {
			return nil, &MalformedMessageError{Type: typ, Reason: fmt.Sprintf("missing field %q", name)}
		}
		if bytes.Equal(bytes.TrimSpace(raw), jsonNull) && !slices.Contains(nullable, name) {
			return nil, &MalformedMessageError{Type: typ, Reason: fmt.Sprintf("field %q is null", name)}
		}
	}
	if e, ok := msg.(Error); ok && !e.Code.Valid() {
		return nil, &MalformedMessageError{Type: typ, Reason: fmt.Sprintf("unknown error code %q", e.Code)}
	}
	return msg, nil
}
