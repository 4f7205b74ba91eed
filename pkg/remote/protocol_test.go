package remote

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func sampleMessages() []Message {
	track := Track{ID: "t1", Title: "One", Artists: []string{"A"}, DurationMS: int64Ptr(180000)}
	album := MediaItem{Type: MediaAlbum, ID: "al1", Title: "Album", Tracks: []Track{track}}
	bare := Track{ID: "t2", Title: "Two", Artists: []string{}, Extras: map[string]string{}}
	empty := MediaItem{Type: MediaPlaylist, ID: "pl1", Title: "Empty", Tracks: []Track{}, Extras: map[string]string{}}
	return []Message{
		ConnectionRequest{DeviceName: "Phone", DeviceID: "dev-1", InstalledExtensions: []string{"spotify", "local"}},
		ConnectionResponse{Accepted: true, DeviceName: "Living Room"},
		Rejected("Living Room", "nope"),
		Disconnect{Reason: DefaultDisconnectReason},
		Ping{Timestamp: 1234},
		Pong{Timestamp: 1234},
		PlayPause{IsPlaying: true},
		Seek{Position: 42000},
		SeekRelative{Delta: -10000},
		Next{},
		Previous{},
		SetShuffleMode{Enabled: true},
		SetRepeatMode{Mode: RepeatAll},
		VolumeChange{Volume: 0.5},
		SetQueue{Tracks: []Track{track}, StartIndex: 0, ExtensionID: "local"},
		SetQueue{Tracks: []Track{track}, StartIndex: 0, ExtensionID: "local", Context: &album},
		AddToQueue{Item: album, ExtensionID: "local", Loaded: true},
		AddToNext{Item: album, ExtensionID: "local"},
		PlayItem{Item: album, ExtensionID: "spotify", Shuffle: true},
		RemoveQueueItem{Position: 2},
		MoveQueueItem{FromPosition: 0, ToPosition: 3},
		ClearQueue{},
		PlayQueueItem{Position: 1},
		PlayerState{CurrentTrack: &track, ExtensionID: strPtr("local"), Position: 1000, Duration: 180000, IsPlaying: true, Queue: []Track{track}, IsLiked: true},
		PlayerState{Queue: []Track{}},
		PlayerState{CurrentTrack: &bare, Queue: []Track{bare}},
		AddToQueue{Item: empty, ExtensionID: "local"},
		QueueUpdate{Queue: []Track{track}, CurrentIndex: 0},
		PositionUpdate{Position: 5000, Duration: 180000},
		LikeTrack{IsLiked: true},
		ErrorMessage(ErrorExtensionNotFound, "Extension 'x' not installed on this device", "Missing extensions: x"),
		Error{Code: ErrorUnknown, Message: "Failed to parse message"},
	}
}

func TestRoundTripAllVariants(t *testing.T) {
	for _, msg := range sampleMessages() {
		data, err := Encode(msg)
		if err != nil {
			t.Fatalf("encode %s: %v", msg.Type(), err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("decode %s: %v (%s)", msg.Type(), err, data)
		}
		if !reflect.DeepEqual(got, msg) {
			t.Fatalf("round trip %s mismatch:\n got %#v\nwant %#v", msg.Type(), got, msg)
		}
	}
}

func TestEveryRegisteredTypeCovered(t *testing.T) {
	seen := map[MessageType]bool{}
	for _, msg := range sampleMessages() {
		seen[msg.Type()] = true
	}
	for _, typ := range MessageTypes() {
		if !seen[typ] {
			t.Fatalf("no round trip sample for %s", typ)
		}
	}
}

func TestEncodeCarriesDiscriminator(t *testing.T) {
	data, err := Encode(Seek{Position: 10})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fields["type"] != string(TypeSeek) {
		t.Fatalf("expected type %s, got %v", TypeSeek, fields["type"])
	}
	if fields["position"] != float64(10) {
		t.Fatalf("expected flattened position, got %v", fields["position"])
	}

	data, err = Encode(Next{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != `{"type":"playback.next"}` {
		t.Fatalf("unexpected encoding %s", data)
	}
}

func TestDecodeDefaults(t *testing.T) {
	prev := nowMillis
	nowMillis = func() int64 { return 777 }
	defer func() { nowMillis = prev }()

	msg, err := Decode([]byte(`{"type":"connection.disconnect"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d, ok := msg.(Disconnect); !ok || d.Reason != DefaultDisconnectReason {
		t.Fatalf("expected default disconnect reason, got %#v", msg)
	}

	msg, err = Decode([]byte(`{"type":"heartbeat.ping"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p, ok := msg.(Ping); !ok || p.Timestamp != 777 {
		t.Fatalf("expected default timestamp, got %#v", msg)
	}

	msg, err = Decode([]byte(`{"type":"queue.playItem","item":{"type":"track","id":"a","title":"A"},"extensionId":"x","loaded":false}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p, ok := msg.(PlayItem); !ok || p.Shuffle {
		t.Fatalf("expected shuffle=false default, got %#v", msg)
	}

	msg, err = Decode([]byte(`{"type":"connection.response","accepted":false,"deviceName":"x"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r := msg.(ConnectionResponse); r.Reason != nil || r.ReasonOr("fallback") != "fallback" {
		t.Fatalf("expected absent reason, got %#v", r)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":        `{{`,
		"array":           `[1,2]`,
		"null":            `null`,
		"missing type":    `{"position":1}`,
		"non string type": `{"type":7}`,
		"unknown type":    `{"type":"bogus"}`,
		"missing field":   `{"type":"playback.seek"}`,
		"type mismatch":   `{"type":"playback.seek","position":"far"}`,
		"missing index":   `{"type":"state.queue","queue":[]}`,
		"bad error code":  `{"type":"error","code":"NOPE","message":"x"}`,
		"null flag":       `{"type":"playback.playPause","isPlaying":null}`,
		"null position":   `{"type":"playback.seek","position":null}`,
		"null request":    `{"type":"connection.request","deviceName":null,"deviceId":null,"installedExtensions":null}`,
		"null tracks":     `{"type":"queue.set","tracks":null,"startIndex":0,"extensionId":"x"}`,
		"null item":       `{"type":"queue.add","item":null,"extensionId":"x","loaded":false}`,
		"null queue":      `{"type":"state.player","currentTrack":null,"extensionId":null,"position":0,"duration":0,` +
			`"isPlaying":false,"isBuffering":false,"shuffleMode":false,"repeatMode":0,"queue":null,"currentIndex":0}`,
		"null error code": `{"type":"error","code":null,"message":"x"}`,
	}
	for name, frame := range cases {
		_, err := Decode([]byte(frame))
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !errors.Is(err, ErrMalformedMessage) {
			t.Fatalf("%s: expected ErrMalformedMessage, got %v", name, err)
		}
		var malformed *MalformedMessageError
		if !errors.As(err, &malformed) {
			t.Fatalf("%s: expected *MalformedMessageError", name)
		}
	}
}

func TestDecodeAllowsNullTrackInPlayerState(t *testing.T) {
	frame := `{"type":"state.player","currentTrack":null,"extensionId":null,"position":0,"duration":0,` +
		`"isPlaying":false,"isBuffering":false,"shuffleMode":false,"repeatMode":0,"queue":[],"currentIndex":-1}`
	msg, err := Decode([]byte(frame))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	state := msg.(PlayerState)
	if state.CurrentTrack != nil || state.ExtensionID != nil || state.CurrentIndex != -1 {
		t.Fatalf("unexpected state %#v", state)
	}
}

func TestEncodeNeverEmitsNullCollections(t *testing.T) {
	for _, msg := range []Message{ConnectionRequest{DeviceName: "a", DeviceID: "b"}, SetQueue{ExtensionID: "x"}, PlayerState{}, QueueUpdate{}} {
		data, err := Encode(msg)
		if err != nil {
			t.Fatalf("encode %s: %v", msg.Type(), err)
		}
		if _, err := Decode(data); err != nil {
			t.Fatalf("decode %s: %v (%s)", msg.Type(), err, data)
		}
	}
}

func TestEmptyCollectionsSurviveRoundTrip(t *testing.T) {
	data, err := Encode(QueueUpdate{Queue: []Track{{ID: "a", Title: "A", Artists: []string{}, Extras: map[string]string{}}}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(data), `"artists":[]`) || !strings.Contains(string(data), `"extras":{}`) {
		t.Fatalf("expected empty collections on the wire, got %s", data)
	}
	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := msg.(QueueUpdate).Queue[0]
	if got.Artists == nil || got.Extras == nil {
		t.Fatalf("empty collections decoded as nil: %#v", got)
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"playback.playPause","isPlaying":true,"extra":1}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg != (PlayPause{IsPlaying: true}) {
		t.Fatalf("unexpected message %#v", msg)
	}
}

func TestDeviceRecordURL(t *testing.T) {
	rec := DeviceRecord{Name: "a", Address: "192.168.1.5", Port: DefaultPort}
	if rec.URL() != "ws://192.168.1.5:8765/" {
		t.Fatalf("unexpected url %s", rec.URL())
	}
	rec.Address = "fe80::1"
	if !strings.HasPrefix(rec.URL(), "ws://[fe80::1]:") {
		t.Fatalf("unexpected ipv6 url %s", rec.URL())
	}
}

func TestParseRepeatMode(t *testing.T) {
	for in, want := range map[string]RepeatMode{"off": RepeatOff, "ONE": RepeatOne, "2": RepeatAll} {
		got, err := ParseRepeatMode(in)
		if err != nil || got != want {
			t.Fatalf("parse %q: got %v %v", in, got, err)
		}
	}
	if _, err := ParseRepeatMode("sometimes"); err == nil {
		t.Fatalf("expected error")
	}
}
