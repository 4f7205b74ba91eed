package core

import (
	"context"
	"errors"
	"testing"

	"github.com/mikey-austin/echo_remote/pkg/remote"
)

type fakeFinder struct {
	devices []remote.DeviceRecord
	err     error
	calls   int
}

func (f *fakeFinder) FindDevices(ctx context.Context) ([]remote.DeviceRecord, error) {
	f.calls++
	return f.devices, f.err
}

var (
	livingRoom = remote.DeviceRecord{Name: "Living Room", Address: "192.168.1.5", Port: 8765, DeviceID: "p-1"}
	kitchen    = remote.DeviceRecord{Name: "Kitchen", Address: "192.168.1.6", Port: 8765, DeviceID: "p-2"}
)

func TestResolverAlias(t *testing.T) {
	resolver := Resolver{
		Finder: &fakeFinder{devices: []remote.DeviceRecord{livingRoom, kitchen}},
		Config: Config{Aliases: map[string]string{"lr": "Living Room"}},
	}
	got, err := resolver.ResolvePlayer(context.Background(), "lr")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != livingRoom {
		t.Fatalf("expected alias resolution, got %+v", got)
	}
}

func TestResolverByDeviceIDAndCase(t *testing.T) {
	resolver := Resolver{Finder: &fakeFinder{devices: []remote.DeviceRecord{livingRoom, kitchen}}}
	if got, err := resolver.ResolvePlayer(context.Background(), "p-2"); err != nil || got != kitchen {
		t.Fatalf("expected kitchen by id, got %+v %v", got, err)
	}
	if got, err := resolver.ResolvePlayer(context.Background(), "kitchen"); err != nil || got != kitchen {
		t.Fatalf("expected kitchen by name, got %+v %v", got, err)
	}
}

func TestResolverAmbiguous(t *testing.T) {
	twin := livingRoom
	twin.Address = "192.168.1.9"
	resolver := Resolver{Finder: &fakeFinder{devices: []remote.DeviceRecord{livingRoom, twin}}}
	_, err := resolver.ResolvePlayer(context.Background(), "Living Room")
	if ExitCode(err) != ExitUsage {
		t.Fatalf("expected ambiguous usage error, got %v", err)
	}
}

func TestResolverNotFound(t *testing.T) {
	resolver := Resolver{Finder: &fakeFinder{devices: []remote.DeviceRecord{kitchen}}}
	_, err := resolver.ResolvePlayer(context.Background(), "Garage")
	if ExitCode(err) != ExitNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolverDefaultAndSingle(t *testing.T) {
	finder := &fakeFinder{devices: []remote.DeviceRecord{livingRoom, kitchen}}
	resolver := Resolver{Finder: finder, Config: Config{Defaults: Defaults{Player: "Kitchen"}}}
	if got, err := resolver.ResolvePlayer(context.Background(), ""); err != nil || got != kitchen {
		t.Fatalf("expected default player, got %+v %v", got, err)
	}

	single := Resolver{Finder: &fakeFinder{devices: []remote.DeviceRecord{kitchen}}}
	if got, err := single.ResolvePlayer(context.Background(), ""); err != nil || got != kitchen {
		t.Fatalf("expected only player, got %+v %v", got, err)
	}

	none := Resolver{Finder: &fakeFinder{}}
	if _, err := none.ResolvePlayer(context.Background(), ""); ExitCode(err) != ExitNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolverAddressSkipsDiscovery(t *testing.T) {
	finder := &fakeFinder{err: errors.New("no network")}
	resolver := Resolver{Finder: finder}

	got, err := resolver.ResolvePlayer(context.Background(), "10.0.0.2:9000")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Address != "10.0.0.2" || got.Port != 9000 {
		t.Fatalf("unexpected record %+v", got)
	}
	got, err = resolver.ResolvePlayer(context.Background(), "ws://10.0.0.3:8765/")
	if err != nil || got.Address != "10.0.0.3" {
		t.Fatalf("unexpected ws url resolution %+v %v", got, err)
	}
	got, err = resolver.ResolvePlayer(context.Background(), "10.0.0.4")
	if err != nil || got.Port != remote.DefaultPort {
		t.Fatalf("expected default port, got %+v %v", got, err)
	}
	if finder.calls != 0 {
		t.Fatalf("expected no discovery, got %d calls", finder.calls)
	}
}
