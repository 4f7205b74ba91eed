package core

import "time"

// Config is runtime configuration for the controller CLI.
type Config struct {
	Name       string
	DeviceID   string
	Extensions []string
	Aliases    map[string]string
	Defaults   Defaults
	// Settle bounds how long a command waits for the player's reply.
	Settle time.Duration
}

// Defaults defines default selector values.
type Defaults struct {
	Player string
}
