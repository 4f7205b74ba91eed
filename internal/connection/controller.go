package connection

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey-austin/echo_remote/internal/adapters/ws"
	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// DefaultRejectedReason is used when a rejection carries no reason.
const DefaultRejectedReason = "Connection rejected"

// ControllerOptions identifies this controller during the handshake.
type ControllerOptions struct {
	DeviceName string
	DeviceID   string
	Extensions []string
	Client     ws.ClientOptions
	// MessageBuffer bounds undelivered inbound messages.
	MessageBuffer int
}

// Controller drives one outbound session to a player.
type Controller struct {
	log      *zap.Logger
	opts     ControllerOptions
	messages chan remote.Message

	mu      sync.Mutex
	client  *ws.Client
	pumpWG  *sync.WaitGroup
	bg      sync.WaitGroup
	device  *remote.DeviceRecord
	state   remote.ConnectionState
	lastErr error
	changed chan struct{}
}

// NewController creates a controller-side manager.
func NewController(log *zap.Logger, opts ControllerOptions) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MessageBuffer <= 0 {
		opts.MessageBuffer = 256
	}
	return &Controller{
		log:      log,
		opts:     opts,
		messages: make(chan remote.Message, opts.MessageBuffer),
		state:    remote.StateDisconnected,
		changed:  make(chan struct{}),
	}
}

// Messages delivers every inbound message except the handshake response.
func (c *Controller) Messages() <-chan remote.Message {
	return c.messages
}

// State returns the session state.
func (c *Controller) State() remote.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the device of the active session.
func (c *Controller) Current() (remote.DeviceRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return remote.DeviceRecord{}, false
	}
	return *c.device, true
}

// LastError returns the error that ended the previous session, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Connect opens a session to device in the background. It warns and does
// nothing while a session is active.
func (c *Controller) Connect(device remote.DeviceRecord) {
	c.mu.Lock()
	if c.client != nil {
		c.mu.Unlock()
		c.log.Warn("already connected to a device", zap.String("device", device.Name))
		return
	}
	client := ws.NewClient(c.log.Named("ws"), device.URL(), c.opts.Client)
	wg := &sync.WaitGroup{}
	c.client = client
	c.pumpWG = wg
	dev := device
	c.device = &dev
	c.lastErr = nil
	c.setStateLocked(remote.StateConnecting)
	c.mu.Unlock()

	c.log.Info("connecting", zap.String("device", device.Name), zap.String("url", client.URL()))
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.pump(client)
	}()
	client.Connect()
}

func (c *Controller) pump(client *ws.Client) {
	for ev := range client.Events() {
		switch ev.Kind {
		case ws.ClientOpen:
			if !c.isCurrent(client) {
				continue
			}
			c.mu.Lock()
			c.setStateLocked(remote.StateConnecting)
			c.mu.Unlock()
			req := remote.ConnectionRequest{
				DeviceName:          c.opts.DeviceName,
				DeviceID:            c.opts.DeviceID,
				InstalledExtensions: append([]string{}, c.opts.Extensions...),
			}
			if err := client.Send(req); err != nil {
				c.log.Warn("failed to send connection request", zap.Error(err))
			}
		case ws.ClientMessage:
			c.handleMessage(client, ev.Message)
		case ws.ClientLost:
			if !c.isCurrent(client) {
				continue
			}
			c.log.Warn("connection lost", zap.String("reason", ev.Reason))
			c.mu.Lock()
			c.setStateLocked(remote.StateDisconnected)
			c.mu.Unlock()
		case ws.ClientClosed:
			c.mu.Lock()
			if c.client == client {
				c.client = nil
				c.device = nil
				if ev.Err != nil {
					c.lastErr = ev.Err
					c.setStateLocked(remote.StateError)
				} else {
					c.setStateLocked(remote.StateDisconnected)
				}
			}
			c.mu.Unlock()
			if ev.Err != nil {
				c.log.Error("connection failed", zap.String("reason", ev.Reason), zap.Error(ev.Err))
			}
		}
	}
}

func (c *Controller) handleMessage(client *ws.Client, msg remote.Message) {
	if !c.isCurrent(client) {
		return
	}
	switch m := msg.(type) {
	case remote.ConnectionResponse:
		if m.Accepted {
			c.log.Info("connection accepted", zap.String("player", m.DeviceName))
			c.mu.Lock()
			if c.device != nil && m.DeviceName != "" && c.device.Name == "" {
				c.device.Name = m.DeviceName
			}
			c.setStateLocked(remote.StateConnected)
			c.mu.Unlock()
			return
		}
		reason := m.ReasonOr(DefaultRejectedReason)
		c.log.Warn("connection rejected", zap.String("player", m.DeviceName), zap.String("reason", reason))
		c.teardown(reason, &RejectedError{Device: m.DeviceName, Reason: reason}, true)
	case remote.Disconnect:
		c.log.Info("player disconnected", zap.String("reason", m.Reason))
		c.teardown(m.Reason, nil, false)
	default:
		select {
		case c.messages <- msg:
		default:
			c.log.Warn("dropping inbound message, consumer too slow", zap.String("type", string(msg.Type())))
		}
	}
}

// teardown ends the current session from inside the pump goroutine.
func (c *Controller) teardown(reason string, cause error, graceful bool) {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.device = nil
	c.lastErr = cause
	c.setStateLocked(remote.StateDisconnected)
	if client != nil {
		c.bg.Add(1)
	}
	c.mu.Unlock()
	if client == nil {
		return
	}
	go func() {
		defer c.bg.Done()
		if graceful {
			client.DisconnectGracefully(reason)
		} else {
			client.Close()
		}
	}()
}

// Active reports whether a session exists, including while its transport
// is reconnecting.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil
}

// Disconnect ends the session gracefully and waits for it to wind down.
func (c *Controller) Disconnect(reason string) {
	if reason == "" {
		reason = remote.DefaultDisconnectReason
	}
	c.mu.Lock()
	client := c.client
	wg := c.pumpWG
	c.client = nil
	c.device = nil
	c.setStateLocked(remote.StateDisconnected)
	c.mu.Unlock()
	if client == nil {
		c.bg.Wait()
		return
	}
	client.DisconnectGracefully(reason)
	if wg != nil {
		wg.Wait()
	}
	c.bg.Wait()
	c.log.Info("disconnected", zap.String("reason", reason))
}

// Send forwards msg to the player once the session is accepted.
func (c *Controller) Send(msg remote.Message) error {
	c.mu.Lock()
	client := c.client
	state := c.state
	c.mu.Unlock()
	if client == nil || state != remote.StateConnected {
		c.log.Warn("cannot send message, not connected", zap.String("type", string(remote.TypeOf(msg))))
		return ErrNotConnected
	}
	return client.Send(msg)
}

// WaitConnected blocks until the session is accepted, fails, or ctx ends.
func (c *Controller) WaitConnected(ctx context.Context) error {
	for {
		c.mu.Lock()
		state := c.state
		active := c.client != nil
		lastErr := c.lastErr
		changed := c.changed
		c.mu.Unlock()

		switch {
		case state == remote.StateConnected:
			return nil
		case state == remote.StateError:
			if lastErr != nil {
				return lastErr
			}
			return ErrNotConnected
		case !active:
			if lastErr != nil {
				return lastErr
			}
			return ErrNotConnected
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// ConnectAndWait connects and waits for acceptance. On failure or
// cancellation the session is torn down.
func (c *Controller) ConnectAndWait(ctx context.Context, device remote.DeviceRecord) error {
	c.Connect(device)
	if err := c.WaitConnected(ctx); err != nil {
		c.Disconnect("Connection cancelled")
		return err
	}
	return nil
}

// StateChanges returns a channel closed on the next state change.
func (c *Controller) StateChanges() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// Close ends any session.
func (c *Controller) Close() {
	c.Disconnect(remote.DefaultDisconnectReason)
}

func (c *Controller) isCurrent(client *ws.Client) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client == client
}

func (c *Controller) setStateLocked(state remote.ConnectionState) {
	if c.state == state {
		return
	}
	c.log.Debug("connection state", zap.Stringer("from", c.state), zap.Stringer("to", state))
	c.state = state
	close(c.changed)
	c.changed = make(chan struct{})
}
