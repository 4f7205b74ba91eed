package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

const appName = "echo-remote"

// Config holds CLI configuration from config.toml.
type Config struct {
	Name       string            `toml:"name"`
	DeviceID   string            `toml:"device_id"`
	Extensions []string          `toml:"extensions"`
	Aliases    map[string]string `toml:"aliases"`
	Defaults   Defaults          `toml:"defaults"`
	// TimeoutMS bounds each command including discovery and connect.
	TimeoutMS int `toml:"timeout_ms"`
	// DiscoveryWindowMS is how long ls and name resolution browse.
	DiscoveryWindowMS int `toml:"discovery_window_ms"`
	// SettleMS is how long a command waits for the player's reply.
	SettleMS int `toml:"settle_ms"`
}

// Defaults defines default selector values.
type Defaults struct {
	Player string `toml:"player"`
}

// Timeout returns TimeoutMS as a duration, or fallback when unset.
func (c Config) Timeout(fallback time.Duration) time.Duration {
	return msOr(c.TimeoutMS, fallback)
}

// DiscoveryWindow returns DiscoveryWindowMS as a duration, or fallback.
func (c Config) DiscoveryWindow(fallback time.Duration) time.Duration {
	return msOr(c.DiscoveryWindowMS, fallback)
}

// Settle returns SettleMS as a duration, or zero when unset.
func (c Config) Settle() time.Duration {
	return msOr(c.SettleMS, 0)
}

func msOr(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// Load loads config.toml if present. Missing file returns an empty config.
func Load() (Config, error) {
	return LoadFile(Path())
}

// LoadFile loads the config at path. Missing file returns an empty config.
func LoadFile(path string) (Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{Aliases: map[string]string{}}, nil
		}
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Aliases == nil {
		cfg.Aliases = map[string]string{}
	}
	return cfg, nil
}

// Path returns the config file location.
func Path() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.toml")
}

// StatePath returns the file holding persisted controller state such as the
// generated device id. The directory is created if needed.
func StatePath() (string, error) {
	return xdg.StateFile(filepath.Join(appName, "echoctl.json"))
}
