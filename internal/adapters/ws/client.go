package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// ClientEventKind classifies client events.
type ClientEventKind int

const (
	// ClientOpen fires after every successful dial, including reconnects.
	ClientOpen ClientEventKind = iota
	// ClientMessage carries one decoded inbound frame.
	ClientMessage
	// ClientLost fires on an unexpected close; a reconnect may follow.
	ClientLost
	// ClientClosed is the final event; Err is nil for a local close.
	ClientClosed
)

// ClientEvent is delivered on the client event stream.
type ClientEvent struct {
	Kind    ClientEventKind
	Message remote.Message
	Reason  string
	Err     error
}

// ClientOptions tunes the client.
type ClientOptions struct {
	HeartbeatInterval    time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	IdleTimeout          time.Duration
	HandshakeTimeout     time.Duration
	WriteTimeout         time.Duration
	EventBuffer          int
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 15 * time.Second
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 3 * time.Second
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 5
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 30 * time.Second
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	return o
}

// Client holds at most one outbound connection to a player. A client is
// single use: once closed it cannot be connected again.
type Client struct {
	log    *zap.Logger
	url    string
	opts   ClientOptions
	dialer websocket.Dialer
	events chan ClientEvent
	stop   chan struct{}

	mu       sync.Mutex
	conn     *websocket.Conn
	state    remote.ConnectionState
	attempts int
	started  bool
	closing  bool
	stopOnce sync.Once
	writeMu  sync.Mutex
	wg       sync.WaitGroup
}

// NewClient creates a client for url.
func NewClient(log *zap.Logger, url string, opts ClientOptions) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Client{
		log:    log,
		url:    url,
		opts:   opts,
		dialer: websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		events: make(chan ClientEvent, opts.EventBuffer),
		stop:   make(chan struct{}),
		state:  remote.StateDisconnected,
	}
}

// URL returns the target URL.
func (c *Client) URL() string {
	return c.url
}

// Events returns the event stream. It is closed when the client stops.
func (c *Client) Events() <-chan ClientEvent {
	return c.events
}

// State returns the transport connection state.
func (c *Client) State() remote.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the current reconnect attempt count.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Connect starts dialing in the background. Calling it again warns.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		c.log.Warn("connect ignored, client already active", zap.String("url", c.url))
		return
	}
	c.started = true
	c.state = remote.StateConnecting
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run()
}

func (c *Client) run() {
	defer c.wg.Done()
	defer close(c.events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	reconnecting := false
	for {
		c.setState(remote.StateConnecting)
		conn, err := c.dial(ctx)
		if err != nil {
			if c.isClosing() {
				c.finish(remote.StateDisconnected, "closed", nil)
				return
			}
			if !reconnecting {
				c.log.Error("connection failed", zap.String("url", c.url), zap.Error(err))
				c.finish(remote.StateError, err.Error(), err)
				return
			}
			c.log.Warn("reconnection failed", zap.String("url", c.url), zap.Error(err))
		} else {
			reason, local := c.serve(conn)
			if local {
				c.finish(remote.StateDisconnected, reason, nil)
				return
			}
			c.setState(remote.StateDisconnected)
			c.emit(ClientEvent{Kind: ClientLost, Reason: reason, Err: ErrTransportLost})
		}

		c.mu.Lock()
		if c.attempts >= c.opts.MaxReconnectAttempts {
			c.mu.Unlock()
			c.log.Error("giving up reconnecting", zap.String("url", c.url), zap.Int("attempts", c.opts.MaxReconnectAttempts))
			c.finish(remote.StateError, "reconnect attempts exhausted", ErrReconnectExhausted)
			return
		}
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()
		reconnecting = true

		c.log.Info("attempting to reconnect",
			zap.Int("attempt", attempt),
			zap.Int("max", c.opts.MaxReconnectAttempts),
			zap.Duration("delay", c.opts.ReconnectDelay),
		)
		timer := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-c.stop:
			timer.Stop()
			c.finish(remote.StateDisconnected, "closed", nil)
			return
		case <-timer.C:
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	headers := http.Header{}
	headers.Set("Origin", c.url)
	conn, _, err := c.dialer.DialContext(ctx, c.url, headers)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// serve owns conn until it closes and reports whether the close was local.
func (c *Client) serve(conn *websocket.Conn) (string, bool) {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		_ = conn.Close()
		return "closed", true
	}
	c.conn = conn
	c.attempts = 0
	c.state = remote.StateConnected
	c.mu.Unlock()
	c.log.Info("connected to player", zap.String("url", c.url))
	c.emit(ClientEvent{Kind: ClientOpen})

	done := make(chan struct{})
	var hb sync.WaitGroup
	hb.Add(1)
	go func() {
		defer hb.Done()
		c.heartbeat(done)
	}()

	reason := c.readLoop(conn)

	close(done)
	hb.Wait()
	_ = conn.Close()

	c.mu.Lock()
	c.conn = nil
	local := c.closing
	c.mu.Unlock()
	return reason, local
}

func (c *Client) heartbeat(done <-chan struct{}) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.Send(remote.NewPing()); err != nil {
				c.log.Warn("failed to send ping", zap.Error(err))
			}
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) string {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout))
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return describeReadError(err)
		}
		if kind != websocket.TextMessage {
			c.log.Warn("received unexpected binary message")
			continue
		}
		msg, err := remote.Decode(data)
		if err != nil {
			c.log.Warn("error parsing message", zap.Error(err))
			continue
		}
		switch m := msg.(type) {
		case remote.Ping:
			if err := c.Send(remote.Pong{Timestamp: m.Timestamp}); err != nil {
				c.log.Warn("failed to send pong", zap.Error(err))
			}
			continue
		case remote.Pong:
			continue
		}
		c.log.Debug("received message", zap.String("type", string(msg.Type())))
		c.emit(ClientEvent{Kind: ClientMessage, Message: msg})
	}
}

// Send writes msg when the connection is open.
func (c *Client) Send(msg remote.Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.log.Warn("cannot send message, not connected", zap.String("type", string(remote.TypeOf(msg))))
		return ErrNotConnected
	}
	data, err := remote.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type(), err)
	}
	c.log.Debug("sent message", zap.String("type", string(msg.Type())))
	return nil
}

// DisconnectGracefully sends Disconnect{reason}, closes with 1000 and waits
// for the background goroutines. No reconnect follows.
func (c *Client) DisconnectGracefully(reason string) {
	if reason == "" {
		reason = remote.DefaultDisconnectReason
	}
	c.mu.Lock()
	c.attempts = c.opts.MaxReconnectAttempts
	c.mu.Unlock()

	if err := c.Send(remote.Disconnect{Reason: reason}); err != nil && !errors.Is(err, ErrNotConnected) {
		c.log.Warn("error disconnecting", zap.Error(err))
	}
	c.shutdown(NormalClosure, reason)
}

// Close stops the client without sending Disconnect and waits for its
// goroutines to exit.
func (c *Client) Close() {
	c.shutdown(NormalClosure, "")
}

func (c *Client) shutdown(code int, reason string) {
	c.mu.Lock()
	c.closing = true
	conn := c.conn
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.stop) })
	if conn != nil {
		c.writeMu.Lock()
		deadline := time.Now().Add(c.opts.WriteTimeout)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	c.wg.Wait()

	c.mu.Lock()
	if c.state != remote.StateError {
		c.state = remote.StateDisconnected
	}
	c.mu.Unlock()
}

func (c *Client) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

func (c *Client) setState(state remote.ConnectionState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Client) finish(state remote.ConnectionState, reason string, err error) {
	c.setState(state)
	c.emit(ClientEvent{Kind: ClientClosed, Reason: reason, Err: err})
}

func (c *Client) emit(ev ClientEvent) {
	select {
	case c.events <- ev:
	case <-c.stop:
	}
}
