package identity

import (
	"fmt"
	"strings"

	"github.com/mikey-austin/echo_remote/internal/ports"
)

// KeyDeviceID holds this installation's stable device id.
const KeyDeviceID = "device_id"

// DeviceID returns the persisted device id, creating and storing one with
// gen on first use. A non-empty override wins and is not persisted.
func DeviceID(store ports.SettingsStore, gen ports.IDGen, override string) (string, error) {
	if id := strings.TrimSpace(override); id != "" {
		return id, nil
	}
	id, ok, err := store.Get(KeyDeviceID)
	if err != nil {
		return "", fmt.Errorf("read device id: %w", err)
	}
	if ok && strings.TrimSpace(id) != "" {
		return id, nil
	}
	id = gen.NewID()
	if err := store.Set(KeyDeviceID, id); err != nil {
		return "", fmt.Errorf("store device id: %w", err)
	}
	return id, nil
}
