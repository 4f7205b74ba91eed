package remote

// DefaultDisconnectReason is used when a Disconnect carries no reason.
const DefaultDisconnectReason = "User disconnected"

// MessageType is the wire discriminator.
type MessageType string

const (
	TypeConnectionRequest  MessageType = "connection.request"
	TypeConnectionResponse MessageType = "connection.response"
	TypeDisconnect         MessageType = "connection.disconnect"
	TypePing               MessageType = "heartbeat.ping"
	TypePong               MessageType = "heartbeat.pong"
	TypePlayPause          MessageType = "playback.playPause"
	TypeSeek               MessageType = "playback.seek"
	TypeSeekRelative       MessageType = "playback.seekRelative"
	TypeNext               MessageType = "playback.next"
	TypePrevious           MessageType = "playback.prev"
	TypeSetShuffleMode     MessageType = "playback.setShuffle"
	TypeSetRepeatMode      MessageType = "playback.setRepeat"
	TypeVolumeChange       MessageType = "playback.setVolume"
	TypeSetQueue           MessageType = "queue.set"
	TypeAddToQueue         MessageType = "queue.add"
	TypeAddToNext          MessageType = "queue.addNext"
	TypePlayItem           MessageType = "queue.playItem"
	TypeRemoveQueueItem    MessageType = "queue.remove"
	TypeMoveQueueItem      MessageType = "queue.move"
	TypeClearQueue         MessageType = "queue.clear"
	TypePlayQueueItem      MessageType = "queue.jump"
	TypePlayerState        MessageType = "state.player"
	TypeQueueUpdate        MessageType = "state.queue"
	TypePositionUpdate     MessageType = "state.position"
	TypeLikeTrack          MessageType = "track.like"
	TypeError              MessageType = "error"
)

// Message is implemented only by the variants in this package.
type Message interface {
	Type() MessageType
	required() []string
}

// ConnectionRequest opens the handshake from a controller.
type ConnectionRequest struct {
	DeviceName          string   `json:"deviceName"`
	DeviceID            string   `json:"deviceId"`
	InstalledExtensions []string `json:"installedExtensions"`
}

// ConnectionResponse answers a ConnectionRequest.
type ConnectionResponse struct {
	Accepted   bool    `json:"accepted"`
	DeviceName string  `json:"deviceName"`
	Reason     *string `json:"reason,omitempty"`
}

// ReasonOr returns the reason or fallback when none was given.
func (r ConnectionResponse) ReasonOr(fallback string) string {
	if r.Reason == nil || *r.Reason == "" {
		return fallback
	}
	return *r.Reason
}

// Disconnect announces an intentional close.
type Disconnect struct {
	Reason string `json:"reason"`
}

// Ping is the transport heartbeat request.
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

// Pong echoes a Ping timestamp.
type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

// PlayPause resumes or pauses playback.
type PlayPause struct {
	IsPlaying bool `json:"isPlaying"`
}

// Seek moves to an absolute position in milliseconds.
type Seek struct {
	Position int64 `json:"position"`
}

// SeekRelative moves by delta milliseconds.
type SeekRelative struct {
	Delta int64 `json:"delta"`
}

// Next skips to the next queue entry.
type Next struct{}

// Previous skips to the previous queue entry.
type Previous struct{}

// SetShuffleMode toggles shuffle.
type SetShuffleMode struct {
	Enabled bool `json:"enabled"`
}

// SetRepeatMode sets the repeat mode.
type SetRepeatMode struct {
	Mode RepeatMode `json:"mode"`
}

// VolumeChange sets the output volume in [0,1].
type VolumeChange struct {
	Volume float64 `json:"volume"`
}

// SetQueue replaces the queue.
type SetQueue struct {
	Tracks      []Track    `json:"tracks"`
	StartIndex  int        `json:"startIndex"`
	ExtensionID string     `json:"extensionId"`
	Context     *MediaItem `json:"context,omitempty"`
}

// AddToQueue appends an item to the queue.
type AddToQueue struct {
	Item        MediaItem `json:"item"`
	ExtensionID string    `json:"extensionId"`
	Loaded      bool      `json:"loaded"`
}

// AddToNext inserts an item after the current entry.
type AddToNext struct {
	Item        MediaItem `json:"item"`
	ExtensionID string    `json:"extensionId"`
	Loaded      bool      `json:"loaded"`
}

// PlayItem replaces the queue with an item and starts playback.
type PlayItem struct {
	Item        MediaItem `json:"item"`
	ExtensionID string    `json:"extensionId"`
	Loaded      bool      `json:"loaded"`
	Shuffle     bool      `json:"shuffle"`
}

// RemoveQueueItem removes the entry at Position.
type RemoveQueueItem struct {
	Position int `json:"position"`
}

// MoveQueueItem moves an entry between positions.
type MoveQueueItem struct {
	FromPosition int `json:"fromPosition"`
	ToPosition   int `json:"toPosition"`
}

// ClearQueue empties the queue.
type ClearQueue struct{}

// PlayQueueItem jumps to the entry at Position.
type PlayQueueItem struct {
	Position int `json:"position"`
}

// PlayerState is a complete snapshot of player state.
type PlayerState struct {
	CurrentTrack *Track     `json:"currentTrack"`
	ExtensionID  *string    `json:"extensionId"`
	Position     int64      `json:"position"`
	Duration     int64      `json:"duration"`
	IsPlaying    bool       `json:"isPlaying"`
	IsBuffering  bool       `json:"isBuffering"`
	ShuffleMode  bool       `json:"shuffleMode"`
	RepeatMode   RepeatMode `json:"repeatMode"`
	Queue        []Track    `json:"queue"`
	CurrentIndex int        `json:"currentIndex"`
	IsLiked      bool       `json:"isLiked"`
}

// QueueUpdate carries the queue when its identity changed.
type QueueUpdate struct {
	Queue        []Track `json:"queue"`
	CurrentIndex int     `json:"currentIndex"`
}

// PositionUpdate is a periodic position tick.
type PositionUpdate struct {
	Position int64 `json:"position"`
	Duration int64 `json:"duration"`
}

// LikeTrack likes or unlikes the current track.
type LikeTrack struct {
	IsLiked bool `json:"isLiked"`
}

// Error reports a failure to the peer.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details *string   `json:"details,omitempty"`
}

func (ConnectionRequest) Type() MessageType  { return TypeConnectionRequest }
func (ConnectionResponse) Type() MessageType { return TypeConnectionResponse }
func (Disconnect) Type() MessageType         { return TypeDisconnect }
func (Ping) Type() MessageType               { return TypePing }
func (Pong) Type() MessageType               { return TypePong }
func (PlayPause) Type() MessageType          { return TypePlayPause }
func (Seek) Type() MessageType               { return TypeSeek }
func (SeekRelative) Type() MessageType       { return TypeSeekRelative }
func (Next) Type() MessageType               { return TypeNext }
func (Previous) Type() MessageType           { return TypePrevious }
func (SetShuffleMode) Type() MessageType     { return TypeSetShuffleMode }
func (SetRepeatMode) Type() MessageType      { return TypeSetRepeatMode }
func (VolumeChange) Type() MessageType       { return TypeVolumeChange }
func (SetQueue) Type() MessageType           { return TypeSetQueue }
func (AddToQueue) Type() MessageType         { return TypeAddToQueue }
func (AddToNext) Type() MessageType          { return TypeAddToNext }
func (PlayItem) Type() MessageType           { return TypePlayItem }
func (RemoveQueueItem) Type() MessageType    { return TypeRemoveQueueItem }
func (MoveQueueItem) Type() MessageType      { return TypeMoveQueueItem }
func (ClearQueue) Type() MessageType         { return TypeClearQueue }
func (PlayQueueItem) Type() MessageType      { return TypePlayQueueItem }
func (PlayerState) Type() MessageType        { return TypePlayerState }
func (QueueUpdate) Type() MessageType        { return TypeQueueUpdate }
func (PositionUpdate) Type() MessageType     { return TypePositionUpdate }
func (LikeTrack) Type() MessageType          { return TypeLikeTrack }
func (Error) Type() MessageType              { return TypeError }

func (ConnectionRequest) required() []string {
	return []string{"deviceName", "deviceId", "installedExtensions"}
}
func (ConnectionResponse) required() []string { return []string{"accepted", "deviceName"} }
func (Disconnect) required() []string         { return nil }
func (Ping) required() []string               { return nil }
func (Pong) required() []string               { return nil }
func (PlayPause) required() []string          { return []string{"isPlaying"} }
func (Seek) required() []string               { return []string{"position"} }
func (SeekRelative) required() []string       { return []string{"delta"} }
func (Next) required() []string               { return nil }
func (Previous) required() []string           { return nil }
func (SetShuffleMode) required() []string     { return []string{"enabled"} }
func (SetRepeatMode) required() []string      { return []string{"mode"} }
func (VolumeChange) required() []string       { return []string{"volume"} }
func (SetQueue) required() []string           { return []string{"tracks", "startIndex", "extensionId"} }
func (AddToQueue) required() []string         { return []string{"item", "extensionId", "loaded"} }
func (AddToNext) required() []string          { return []string{"item", "extensionId", "loaded"} }
func (PlayItem) required() []string           { return []string{"item", "extensionId", "loaded"} }
func (RemoveQueueItem) required() []string    { return []string{"position"} }
func (MoveQueueItem) required() []string      { return []string{"fromPosition", "toPosition"} }
func (ClearQueue) required() []string         { return nil }
func (PlayQueueItem) required() []string      { return []string{"position"} }
func (PlayerState) required() []string {
	return []string{"currentTrack", "extensionId", "position", "duration", "isPlaying", "isBuffering", "shuffleMode", "repeatMode", "queue", "currentIndex"}
}
func (QueueUpdate) required() []string    { return []string{"queue", "currentIndex"} }

// nullable lists required fields that may carry an explicit null.
func (PlayerState) nullable() []string { return []string{"currentTrack", "extensionId"} }

// wire fills required collections so they never encode as null.
func (m ConnectionRequest) wire() Message {
	if m.InstalledExtensions == nil {
		m.InstalledExtensions = []string{}
	}
	return m
}

func (m SetQueue) wire() Message {
	if m.Tracks == nil {
		m.Tracks = []Track{}
	}
	return m
}

func (m PlayerState) wire() Message {
	if m.Queue == nil {
		m.Queue = []Track{}
	}
	return m
}

func (m QueueUpdate) wire() Message {
	if m.Queue == nil {
		m.Queue = []Track{}
	}
	return m
}
func (PositionUpdate) required() []string { return []string{"position", "duration"} }
func (LikeTrack) required() []string      { return []string{"isLiked"} }
func (Error) required() []string          { return []string{"code", "message"} }

// ErrorMessage builds an Error with optional details.
func ErrorMessage(code ErrorCode, message string, details string) Error {
	msg := Error{Code: code, Message: message}
	if details != "" {
		msg.Details = &details
	}
	return msg
}

// Rejected builds a declined ConnectionResponse.
func Rejected(deviceName string, reason string) ConnectionResponse {
	return ConnectionResponse{Accepted: false, DeviceName: deviceName, Reason: &reason}
}

// Accepted builds an accepted ConnectionResponse.
func Accepted(deviceName string) ConnectionResponse {
	return ConnectionResponse{Accepted: true, DeviceName: deviceName}
}
