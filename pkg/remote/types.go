package remote

import (
	"fmt"
	"strings"
)

// DefaultPort is the well-known port a player listens on.
const DefaultPort = 8765

// ServiceType is the mDNS service type advertised by players.
const ServiceType = "_echo._tcp"

// ServiceDomain is the mDNS domain used for advertise and browse.
const ServiceDomain = "local."

// DefaultServiceNamePrefix prefixes the advertised player name.
const DefaultServiceNamePrefix = "Echo Player"

// Track is a playable item reference. Identity is ID.
type Track struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Artists    []string          `json:"artists"`
	Album      string            `json:"album,omitempty"`
	DurationMS *int64            `json:"durationMs,omitempty"`
	CoverURL   string            `json:"coverUrl,omitempty"`
	Extras     map[string]string `json:"extras"`
}

// MediaItemType classifies a MediaItem.
type MediaItemType string

const (
	MediaTrack    MediaItemType = "track"
	MediaAlbum    MediaItemType = "album"
	MediaPlaylist MediaItemType = "playlist"
	MediaArtist   MediaItemType = "artist"
	MediaRadio    MediaItemType = "radio"
)

// MediaItem is a browsable item resolved by an extension.
type MediaItem struct {
	Type     MediaItemType     `json:"type"`
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Subtitle string            `json:"subtitle,omitempty"`
	Tracks   []Track           `json:"tracks"`
	Extras   map[string]string `json:"extras"`
}

// RepeatMode mirrors the engine repeat setting.
type RepeatMode int

const (
	RepeatOff RepeatMode = 0
	RepeatOne RepeatMode = 1
	RepeatAll RepeatMode = 2
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return fmt.Sprintf("repeat(%d)", int(m))
	}
}

// ParseRepeatMode accepts off|one|all or the numeric form.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "0", "none":
		return RepeatOff, nil
	case "one", "1", "track":
		return RepeatOne, nil
	case "all", "2", "queue":
		return RepeatAll, nil
	default:
		return RepeatOff, fmt.Errorf("repeat must be off|one|all")
	}
}

// ErrorCode classifies protocol errors.
type ErrorCode string

const (
	ErrorExtensionNotFound     ErrorCode = "EXTENSION_NOT_FOUND"
	ErrorIncompatibleExtension ErrorCode = "INCOMPATIBLE_EXTENSION"
	ErrorPlayback              ErrorCode = "PLAYBACK_ERROR"
	ErrorNetwork               ErrorCode = "NETWORK_ERROR"
	ErrorUnknown               ErrorCode = "UNKNOWN_ERROR"
)

// Valid reports whether the code is one of the known codes.
func (c ErrorCode) Valid() bool {
	switch c {
	case ErrorExtensionNotFound, ErrorIncompatibleExtension, ErrorPlayback, ErrorNetwork, ErrorUnknown:
		return true
	default:
		return false
	}
}

// DeviceRecord is a discovered player on the local network.
// Dedup identity is (Name, Address); trust identity is DeviceID.
type DeviceRecord struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Port     int    `json:"port"`
	DeviceID string `json:"deviceId"`
}

// URL returns the websocket URL for the record.
func (d DeviceRecord) URL() string {
	host := d.Address
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("ws://%s:%d/", host, d.Port)
}

// ConnectionState is the connection lifecycle of a role instance.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
