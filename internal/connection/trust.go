package connection

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mikey-austin/echo_remote/internal/adapters/settings"
	"github.com/mikey-austin/echo_remote/internal/ports"
)

type trustSet map[string]struct{}

// TrustStore is the persisted set of trusted controller device ids. Reads
// are lock free; writes are serialized and persisted before they publish.
type TrustStore struct {
	log   *zap.Logger
	store ports.SettingsStore
	mu    sync.Mutex
	set   atomic.Pointer[trustSet]
}

// NewTrustStore loads the trusted set from store. An unreadable value is
// logged and treated as empty.
func NewTrustStore(log *zap.Logger, store ports.SettingsStore) (*TrustStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	t := &TrustStore{log: log, store: store}
	set, err := t.load()
	if err != nil {
		return nil, err
	}
	t.set.Store(&set)
	return t, nil
}

// load reads the persisted set. An unparsable value reads as empty.
func (t *TrustStore) load() (trustSet, error) {
	raw, ok, err := t.store.Get(settings.KeyTrustedDevices)
	if err != nil {
		return nil, fmt.Errorf("load trusted devices: %w", err)
	}
	set := trustSet{}
	if !ok || raw == "" {
		return set, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		t.log.Error("error parsing trusted devices", zap.Error(err))
		return set, nil
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// Contains reports whether id is trusted.
func (t *TrustStore) Contains(id string) bool {
	set := t.set.Load()
	_, ok := (*set)[id]
	return ok
}

// List returns the trusted ids in sorted order.
func (t *TrustStore) List() []string {
	set := t.set.Load()
	out := make([]string, 0, len(*set))
	for id := range *set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Add trusts id. name is only used for logging.
func (t *TrustStore) Add(id string, name string) error {
	err := t.update(func(set trustSet) bool {
		if _, ok := set[id]; ok {
			return false
		}
		set[id] = struct{}{}
		return true
	})
	if err == nil {
		t.log.Info("added trusted device", zap.String("device", name), zap.String("device_id", id))
	}
	return err
}

// Remove untrusts id.
func (t *TrustStore) Remove(id string) error {
	err := t.update(func(set trustSet) bool {
		if _, ok := set[id]; !ok {
			return false
		}
		delete(set, id)
		return true
	})
	if err == nil {
		t.log.Info("removed trusted device", zap.String("device_id", id))
	}
	return err
}

// Clear removes every trusted id.
func (t *TrustStore) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.store.Delete(settings.KeyTrustedDevices); err != nil {
		return fmt.Errorf("clear trusted devices: %w", err)
	}
	empty := trustSet{}
	t.set.Store(&empty)
	t.log.Info("cleared all trusted devices")
	return nil
}

func (t *TrustStore) update(mutate func(trustSet) bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Start from the persisted set; another process may have written it.
	next, err := t.load()
	if err != nil {
		return err
	}
	if !mutate(next) {
		t.set.Store(&next)
		return nil
	}

	ids := make([]string, 0, len(next))
	for id := range next {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	payload, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := t.store.Set(settings.KeyTrustedDevices, string(payload)); err != nil {
		return fmt.Errorf("persist trusted devices: %w", err)
	}
	t.set.Store(&next)
	return nil
}
