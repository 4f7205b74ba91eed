package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/mikey-austin/echo_remote/pkg/remote"
)

type fakeBrowser struct {
	events chan Event
	calls  int
}

func (b *fakeBrowser) Browse(ctx context.Context, serviceType string, domain string, out chan<- Event) error {
	b.calls++
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-b.events:
			out <- ev
		}
	}
}

type fakeRegistration struct {
	name string
	shut bool
}

func (r *fakeRegistration) Name() string { return r.name }
func (r *fakeRegistration) Shutdown()    { r.shut = true }

type fakeAdvertiser struct {
	regs []*fakeRegistration
}

func (a *fakeAdvertiser) Advertise(name string, serviceType string, domain string, port int, deviceID string) (Registration, error) {
	reg := &fakeRegistration{name: name}
	a.regs = append(a.regs, reg)
	return reg, nil
}

func rec(name, addr string, port int) remote.DeviceRecord {
	return remote.DeviceRecord{Name: name, Address: addr, Port: port, DeviceID: name + "-id"}
}

func TestRegistryDedupByNameAndAddress(t *testing.T) {
	r := NewRegistry()
	if !r.Apply(Event{Kind: Found, Record: rec("Kitchen", "10.0.0.2", 8765)}) {
		t.Fatalf("expected first found to change set")
	}
	if r.Apply(Event{Kind: Found, Record: rec("Kitchen", "10.0.0.2", 8765)}) {
		t.Fatalf("expected duplicate found to be ignored")
	}
	if !r.Apply(Event{Kind: Found, Record: rec("Kitchen", "10.0.0.2", 9000)}) {
		t.Fatalf("expected stale entry replaced")
	}
	r.Apply(Event{Kind: Found, Record: rec("Kitchen", "10.0.0.3", 8765)})
	r.Apply(Event{Kind: Found, Record: rec("Den", "10.0.0.4", 8765)})

	devices := r.Devices()
	if len(devices) != 3 {
		t.Fatalf("expected 3 devices, got %+v", devices)
	}
	if devices[0].Port != 9000 {
		t.Fatalf("expected replaced port, got %d", devices[0].Port)
	}

	if !r.Apply(Event{Kind: Lost, Record: remote.DeviceRecord{Name: "Kitchen"}}) {
		t.Fatalf("expected lost to remove entries")
	}
	devices = r.Devices()
	if len(devices) != 1 || devices[0].Name != "Den" {
		t.Fatalf("expected only Den left, got %+v", devices)
	}
	if r.Apply(Event{Kind: Lost, Record: remote.DeviceRecord{Name: "Kitchen"}}) {
		t.Fatalf("expected second lost to be no-op")
	}
}

func TestRegistryIgnoresSelfAndIncomplete(t *testing.T) {
	r := NewRegistry()
	r.SetSelf("Echo Player Me")
	if r.Apply(Event{Kind: Found, Record: rec("Echo Player Me", "10.0.0.9", 8765)}) {
		t.Fatalf("expected self to be ignored")
	}
	if r.Apply(Event{Kind: Found, Record: rec("NoAddr", "", 8765)}) {
		t.Fatalf("expected record without address to be ignored")
	}
	if r.Apply(Event{Kind: ResolveFailed, Record: rec("Broken", "", 0)}) {
		t.Fatalf("expected resolve failure to be ignored")
	}
	if len(r.Devices()) != 0 {
		t.Fatalf("expected empty set")
	}
}

func TestRegistryDevicesIsCopy(t *testing.T) {
	r := NewRegistry()
	r.Apply(Event{Kind: Found, Record: rec("A", "1.1.1.1", 1)})
	devices := r.Devices()
	devices[0].Name = "mutated"
	if r.Devices()[0].Name != "A" {
		t.Fatalf("registry leaked internal slice")
	}
}

func TestRegistryWatchLatest(t *testing.T) {
	r := NewRegistry()
	ch, cancel := r.Watch()
	defer cancel()

	if initial := <-ch; len(initial) != 0 {
		t.Fatalf("expected empty initial snapshot")
	}
	r.Apply(Event{Kind: Found, Record: rec("A", "1.1.1.1", 1)})
	r.Apply(Event{Kind: Found, Record: rec("B", "1.1.1.2", 1)})
	latest := <-ch
	if len(latest) != 2 {
		t.Fatalf("expected latest snapshot with 2 devices, got %+v", latest)
	}
}

func TestServiceBrowseAndStop(t *testing.T) {
	browser := &fakeBrowser{events: make(chan Event)}
	adv := &fakeAdvertiser{}
	svc := NewService(nil, browser, adv, Options{})
	ctx := context.Background()

	if err := svc.Advertise(ctx, "Echo Player Me", remote.DefaultPort, "me"); err != nil {
		t.Fatalf("advertise: %v", err)
	}
	if err := svc.Advertise(ctx, "Echo Player Me", remote.DefaultPort, "me"); err != nil {
		t.Fatalf("second advertise: %v", err)
	}
	if len(adv.regs) != 1 {
		t.Fatalf("expected idempotent advertise, got %d registrations", len(adv.regs))
	}

	if err := svc.StartDiscovery(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.StartDiscovery(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}

	ch, cancel := svc.Watch()
	defer cancel()
	<-ch

	browser.events <- Event{Kind: Found, Record: rec("Echo Player Me", "10.0.0.1", 8765)}
	browser.events <- Event{Kind: Found, Record: rec("Kitchen", "10.0.0.2", 8765)}

	select {
	case devices := <-ch:
		if len(devices) != 1 || devices[0].Name != "Kitchen" {
			t.Fatalf("unexpected devices %+v", devices)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for device")
	}

	svc.StopDiscovery()
	if browser.calls != 1 {
		t.Fatalf("expected one browse, got %d", browser.calls)
	}
	if len(svc.Devices()) != 0 {
		t.Fatalf("expected devices cleared on stop")
	}

	svc.StopAdvertising()
	if !adv.regs[0].shut {
		t.Fatalf("expected registration shut down")
	}
	if svc.AdvertisedName() != "" {
		t.Fatalf("expected no advertised name")
	}
}
