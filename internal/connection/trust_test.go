package connection

import (
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/mikey-austin/echo_remote/internal/adapters/settings"
)

func TestTrustStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store := settings.NewFileStore(path)
	trust, err := NewTrustStore(nil, store)
	if err != nil {
		t.Fatalf("new trust store: %v", err)
	}
	if trust.Contains("a") {
		t.Fatalf("expected empty store")
	}
	if err := trust.Add("b", "Phone B"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := trust.Add("a", "Phone A"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !trust.Contains("a") || !trust.Contains("b") {
		t.Fatalf("expected both trusted")
	}

	reloaded, err := NewTrustStore(nil, settings.NewFileStore(path))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.List(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("unexpected persisted set %v", got)
	}
	raw, _, _ := store.Get(settings.KeyTrustedDevices)
	if raw != `["a","b"]` {
		t.Fatalf("unexpected stored value %s", raw)
	}

	if err := reloaded.Remove("a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if reloaded.Contains("a") {
		t.Fatalf("expected a removed")
	}
	if err := reloaded.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(reloaded.List()) != 0 {
		t.Fatalf("expected cleared set")
	}
	if _, ok, _ := store.Get(settings.KeyTrustedDevices); ok {
		t.Fatalf("expected key removed")
	}
}

func TestTrustStoreCorruptValueIsEmpty(t *testing.T) {
	store := settings.NewFileStore(filepath.Join(t.TempDir(), "s.json"))
	_ = store.Set(settings.KeyTrustedDevices, "{not json")
	trust, err := NewTrustStore(nil, store)
	if err != nil {
		t.Fatalf("new trust store: %v", err)
	}
	if len(trust.List()) != 0 {
		t.Fatalf("expected empty set")
	}
}

func TestTrustStoreConcurrentAdds(t *testing.T) {
	store, err := settings.OpenSQLite(filepath.Join(t.TempDir(), "s.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	trust, err := NewTrustStore(nil, store)
	if err != nil {
		t.Fatalf("new trust store: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("dev-%02d", i)
			if err := trust.Add(id, id); err != nil {
				t.Errorf("add %s: %v", id, err)
			}
			_ = trust.Contains(id)
		}(i)
	}
	wg.Wait()

	if len(trust.List()) != 20 {
		t.Fatalf("expected 20 trusted ids, got %d", len(trust.List()))
	}
	reloaded, err := NewTrustStore(nil, store)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.List()) != 20 {
		t.Fatalf("expected 20 persisted ids, got %d", len(reloaded.List()))
	}
}

func TestTrustStoreWritesOnTopOfPersistedSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	daemon, err := NewTrustStore(nil, settings.NewFileStore(path))
	if err != nil {
		t.Fatalf("daemon store: %v", err)
	}
	if err := daemon.Add("a", "Phone A"); err != nil {
		t.Fatalf("add: %v", err)
	}

	admin, err := NewTrustStore(nil, settings.NewFileStore(path))
	if err != nil {
		t.Fatalf("admin store: %v", err)
	}
	if err := admin.Remove("a"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if err := daemon.Add("b", "Phone B"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := daemon.List(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("removed id resurrected in memory: %v", got)
	}
	reloaded, err := NewTrustStore(nil, settings.NewFileStore(path))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.List(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("removed id resurrected on disk: %v", got)
	}
}
