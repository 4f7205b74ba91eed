package settings

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"

	"github.com/mikey-austin/echo_remote/internal/ports"
)

const (
	// KeyPlayerMode holds the "player mode enabled" flag.
	KeyPlayerMode = "remote_player_mode"
	// KeyTrustedDevices holds the JSON array of trusted device ids.
	KeyTrustedDevices = "remote_trusted_devices"
)

const appName = "echo-remote"

// Store is a SettingsStore that can be released.
type Store interface {
	ports.SettingsStore
	Close() error
}

// Open returns the store for backend ("file" or "sqlite"). An empty path
// resolves under the XDG state directory.
func Open(backend string, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "file", "json":
		if path == "" {
			p, err := xdg.StateFile(filepath.Join(appName, "settings.json"))
			if err != nil {
				return nil, err
			}
			path = p
		}
		return NewFileStore(path), nil
	case "sqlite":
		if path == "" {
			p, err := xdg.StateFile(filepath.Join(appName, "settings.db"))
			if err != nil {
				return nil, err
			}
			path = p
		}
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown settings backend %q", backend)
	}
}

// PlayerModeEnabled reads the player mode flag; absent means false.
func PlayerModeEnabled(store ports.SettingsStore) (bool, error) {
	raw, ok, err := store.Get(KeyPlayerMode)
	if err != nil || !ok {
		return false, err
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", KeyPlayerMode, err)
	}
	return enabled, nil
}

// SetPlayerMode persists the player mode flag.
func SetPlayerMode(store ports.SettingsStore, enabled bool) error {
	return store.Set(KeyPlayerMode, strconv.FormatBool(enabled))
}
