// Package remotectl adapts discovery and the connection manager to the
// controller ports used by the CLI.
package remotectl

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/echo_remote/internal/adapters/mdns"
	"github.com/mikey-austin/echo_remote/internal/adapters/ws"
	"github.com/mikey-austin/echo_remote/internal/connection"
	"github.com/mikey-austin/echo_remote/internal/discovery"
	"github.com/mikey-austin/echo_remote/internal/ports"
	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// Finder browses for a fixed window and returns what it saw.
type Finder struct {
	Log     *zap.Logger
	Browser discovery.Browser
	// Window bounds the browse when ctx has no earlier deadline.
	Window time.Duration
}

// NewFinder creates a Finder backed by mDNS.
func NewFinder(log *zap.Logger, window time.Duration) *Finder {
	if log == nil {
		log = zap.NewNop()
	}
	browser := mdns.NewBrowser(log.Named("mdns"), mdns.BrowserOptions{
		Interval:     window / 2,
		QueryTimeout: window / 2,
	})
	return &Finder{Log: log, Browser: browser, Window: window}
}

// FindDevices browses until the window elapses or ctx ends.
func (f *Finder) FindDevices(ctx context.Context) ([]remote.DeviceRecord, error) {
	window := f.Window
	if window <= 0 {
		window = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	svc := discovery.NewService(f.Log, f.Browser, nil, discovery.Options{})
	if err := svc.StartDiscovery(ctx); err != nil {
		return nil, err
	}
	<-ctx.Done()
	devices := svc.Devices()
	svc.Close()
	return devices, nil
}

// Connector opens controller sessions.
type Connector struct {
	Log     *zap.Logger
	Options connection.ControllerOptions
}

// Connect dials device and waits for the pairing decision.
func (c *Connector) Connect(ctx context.Context, device remote.DeviceRecord) (ports.RemoteSession, error) {
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}
	ctl := connection.NewController(log.Named("connection"), c.Options)
	if err := ctl.ConnectAndWait(ctx, device); err != nil {
		return nil, err
	}
	return ctl, nil
}

// DefaultClientOptions are the transport settings for short CLI sessions.
func DefaultClientOptions() ws.ClientOptions {
	return ws.ClientOptions{MaxReconnectAttempts: 1, ReconnectDelay: 500 * time.Millisecond}
}
