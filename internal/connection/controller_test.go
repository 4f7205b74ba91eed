package connection

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mikey-austin/echo_remote/internal/adapters/ws"
	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// fakePlayer answers connection requests with respond and records every
// other message it receives.
type fakePlayer struct {
	srv      *ws.Server
	ts       *httptest.Server
	received chan remote.Message
	peers    chan ws.PeerID
}

func newFakePlayer(t *testing.T, respond func(remote.ConnectionRequest) *remote.ConnectionResponse) *fakePlayer {
	t.Helper()
	srv := ws.NewServer(nil, ws.ServerOptions{})
	fp := &fakePlayer{
		srv:      srv,
		ts:       httptest.NewServer(srv),
		received: make(chan remote.Message, 16),
		peers:    make(chan ws.PeerID, 4),
	}
	go func() {
		for ev := range srv.Events() {
			if ev.Kind != ws.EventMessage {
				continue
			}
			if req, ok := ev.Message.(remote.ConnectionRequest); ok {
				fp.peers <- ev.Peer
				if resp := respond(req); resp != nil {
					srv.Send(ev.Peer, *resp)
				}
				continue
			}
			fp.received <- ev.Message
		}
	}()
	t.Cleanup(func() {
		fp.ts.Close()
		srv.Shutdown(ws.ShutdownReason)
	})
	return fp
}

func (fp *fakePlayer) device(t *testing.T) remote.DeviceRecord {
	t.Helper()
	addr := fp.ts.Listener.Addr().(*net.TCPAddr)
	return remote.DeviceRecord{Name: "Test Player", Address: addr.IP.String(), Port: addr.Port, DeviceID: "player-1"}
}

func testController() *Controller {
	return NewController(nil, ControllerOptions{
		DeviceName: "Phone",
		DeviceID:   "phone-1",
		Extensions: []string{"local"},
		Client: ws.ClientOptions{
			HeartbeatInterval: time.Hour,
			ReconnectDelay:    10 * time.Millisecond,
		},
	})
}

func TestControllerAcceptedSession(t *testing.T) {
	fp := newFakePlayer(t, func(req remote.ConnectionRequest) *remote.ConnectionResponse {
		if req.DeviceID != "phone-1" || len(req.InstalledExtensions) != 1 {
			t.Errorf("unexpected request %#v", req)
		}
		resp := remote.Accepted("Test Player")
		return &resp
	})
	c := testController()
	defer c.Close()

	if err := c.Send(remote.Next{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected before connect, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.ConnectAndWait(ctx, fp.device(t)); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if c.State() != remote.StateConnected {
		t.Fatalf("expected connected, got %v", c.State())
	}
	if dev, ok := c.Current(); !ok || dev.DeviceID != "player-1" {
		t.Fatalf("unexpected current device %+v", dev)
	}

	if err := c.Send(remote.VolumeChange{Volume: 0.5}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case got := <-fp.received:
		if got != (remote.VolumeChange{Volume: 0.5}) {
			t.Fatalf("unexpected message %#v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("player did not receive command")
	}

	peer := <-fp.peers
	fp.srv.Send(peer, remote.PositionUpdate{Position: 1200, Duration: 60000})
	select {
	case got := <-c.Messages():
		if got != (remote.PositionUpdate{Position: 1200, Duration: 60000}) {
			t.Fatalf("unexpected inbound message %#v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("controller did not receive state")
	}

	c.Disconnect("")
	select {
	case got := <-fp.received:
		disc, ok := got.(remote.Disconnect)
		if !ok || disc.Reason != remote.DefaultDisconnectReason {
			t.Fatalf("expected disconnect, got %#v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("player did not receive disconnect")
	}
	if c.State() != remote.StateDisconnected {
		t.Fatalf("expected disconnected, got %v", c.State())
	}
}

func TestControllerRejected(t *testing.T) {
	fp := newFakePlayer(t, func(remote.ConnectionRequest) *remote.ConnectionResponse {
		resp := remote.Rejected("Test Player", "not today")
		return &resp
	})
	c := testController()
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := c.ConnectAndWait(ctx, fp.device(t))
	var rejected *RejectedError
	if !errors.As(err, &rejected) || rejected.Reason != "not today" {
		t.Fatalf("expected rejection, got %v", err)
	}
	if !errors.Is(err, ErrConnectionRejected) {
		t.Fatalf("expected ErrConnectionRejected, got %v", err)
	}
	if c.State() != remote.StateDisconnected {
		t.Fatalf("expected disconnected, got %v", c.State())
	}
	if _, ok := c.Current(); ok {
		t.Fatalf("expected no current device")
	}
}

func TestControllerRejectedDefaultReason(t *testing.T) {
	fp := newFakePlayer(t, func(remote.ConnectionRequest) *remote.ConnectionResponse {
		return &remote.ConnectionResponse{Accepted: false, DeviceName: "Test Player"}
	})
	c := testController()
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := c.ConnectAndWait(ctx, fp.device(t))
	var rejected *RejectedError
	if !errors.As(err, &rejected) || rejected.Reason != DefaultRejectedReason {
		t.Fatalf("expected default rejection reason, got %v", err)
	}
}

func TestControllerWaitCancelled(t *testing.T) {
	fp := newFakePlayer(t, func(remote.ConnectionRequest) *remote.ConnectionResponse {
		return nil
	})
	c := testController()
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := c.ConnectAndWait(ctx, fp.device(t))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if c.State() != remote.StateDisconnected {
		t.Fatalf("expected disconnected, got %v", c.State())
	}
}

func TestControllerPlayerDisconnect(t *testing.T) {
	fp := newFakePlayer(t, func(remote.ConnectionRequest) *remote.ConnectionResponse {
		resp := remote.Accepted("Test Player")
		return &resp
	})
	c := testController()
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.ConnectAndWait(ctx, fp.device(t)); err != nil {
		t.Fatalf("connect: %v", err)
	}
	peer := <-fp.peers
	changed := c.StateChanges()
	fp.srv.DisconnectClient(peer, "Player going away")

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatalf("state did not change")
	}
	if c.State() != remote.StateDisconnected {
		t.Fatalf("expected disconnected, got %v", c.State())
	}
}

func TestControllerStaysActiveWhileReconnecting(t *testing.T) {
	fp := newFakePlayer(t, func(remote.ConnectionRequest) *remote.ConnectionResponse {
		resp := remote.Accepted("Test Player")
		return &resp
	})
	c := testController()
	defer c.Close()
	if c.Active() {
		t.Fatalf("expected inactive before connect")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.ConnectAndWait(ctx, fp.device(t)); err != nil {
		t.Fatalf("connect: %v", err)
	}
	peer := <-fp.peers
	changed := c.StateChanges()
	fp.srv.Close(peer, ws.NormalClosure, "blip")

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatalf("state did not change")
	}
	if !c.Active() {
		t.Fatalf("session must stay active while the transport reconnects")
	}

	select {
	case <-fp.peers:
	case <-time.After(2 * time.Second):
		t.Fatalf("controller never reconnected")
	}
	if err := c.WaitConnected(ctx); err != nil {
		t.Fatalf("wait reconnected: %v", err)
	}

	c.Disconnect("")
	if c.Active() {
		t.Fatalf("expected inactive after disconnect")
	}
}
