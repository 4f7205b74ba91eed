package core

import "github.com/mikey-austin/echo_remote/pkg/remote"

// DevicesResult holds discovered players.
type DevicesResult struct {
	Devices []remote.DeviceRecord `json:"devices"`
}

// StatusResult holds a player and its state.
type StatusResult struct {
	Player remote.DeviceRecord `json:"player"`
	State  remote.PlayerState  `json:"state"`
}

// QueueResult holds a queue listing.
type QueueResult struct {
	Player       remote.DeviceRecord `json:"player"`
	Queue        []remote.Track      `json:"queue"`
	CurrentIndex int                 `json:"currentIndex"`
}
