package remoteplayer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/echo_remote/internal/adapters/ws"
	"github.com/mikey-austin/echo_remote/internal/connection"
	"github.com/mikey-austin/echo_remote/internal/discovery"
	"github.com/mikey-austin/echo_remote/internal/dispatch"
	"github.com/mikey-austin/echo_remote/internal/playersync"
	"github.com/mikey-austin/echo_remote/internal/ports"
	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// Config configures the remote player module.
type Config struct {
	Name     string
	DeviceID string
	Listen   string
	// Advertise publishes the player over mDNS when an advertiser is set.
	Advertise    bool
	TickInterval time.Duration
	Server       ws.ServerOptions
}

// Deps are the collaborators of the module.
type Deps struct {
	Engine     ports.PlaybackEngine
	Extensions ports.ExtensionRegistry
	Trust      *connection.TrustStore
	Advertiser discovery.Advertiser
	// Approver reviews untrusted controllers. Nil leaves them pending.
	Approver Approver
	// Sync is shared with other state outputs. Nil gives the module its own.
	Sync *playersync.Hub
}

// syncOwner names the module's hold on the shared synchronizer.
const syncOwner = "remote_player"

type decision struct {
	peer ws.PeerID
	Decision
}

// Module accepts controllers over websocket and drives the local engine.
type Module struct {
	log        *zap.Logger
	config     Config
	engine     ports.PlaybackEngine
	server     *ws.Server
	player     *connection.Player
	dispatcher *dispatch.Dispatcher
	sync       *playersync.Hub
	discovery  *discovery.Service
	approver   Approver

	decisions chan decision
	ready     chan struct{}
	readyOnce sync.Once

	mu       sync.Mutex
	addr     net.Addr
	runCtx   context.Context
	reviewed map[ws.PeerID]struct{}
}

// NewModule wires a remote player module.
func NewModule(log *zap.Logger, deps Deps, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Engine == nil {
		return nil, errors.New("playback engine required")
	}
	if deps.Extensions == nil {
		return nil, errors.New("extension registry required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = remote.DefaultServiceNamePrefix
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = fmt.Sprintf(":%d", remote.DefaultPort)
	}

	m := &Module{
		log:       log,
		config:    cfg,
		engine:    deps.Engine,
		server:    ws.NewServer(log.Named("ws"), cfg.Server),
		approver:  deps.Approver,
		decisions: make(chan decision, 16),
		ready:     make(chan struct{}),
		reviewed:  map[ws.PeerID]struct{}{},
	}
	validator := dispatch.NewValidator(log.Named("extensions"), deps.Extensions)
	m.dispatcher = dispatch.NewDispatcher(log.Named("dispatch"), deps.Engine, validator)
	m.player = connection.NewPlayer(log.Named("connection"), m.server, deps.Trust, validator, connection.PlayerOptions{
		DeviceName: cfg.Name,
		OnAccept:   m.onAccept,
	})
	m.sync = deps.Sync
	if m.sync == nil {
		m.sync = playersync.NewHub(log.Named("sync"), deps.Engine, playersync.Options{TickInterval: cfg.TickInterval})
	}
	m.sync.Attach(playersync.BroadcastFunc(m.broadcast))
	if cfg.Advertise && deps.Advertiser != nil {
		m.discovery = discovery.NewService(log.Named("discovery"), nil, deps.Advertiser, discovery.Options{})
	}
	return m, nil
}

// Player exposes the connection manager.
func (m *Module) Player() *connection.Player {
	return m.player
}

// Dispatcher exposes the command dispatcher.
func (m *Module) Dispatcher() *dispatch.Dispatcher {
	return m.dispatcher
}

// Ready is closed once the listener is bound.
func (m *Module) Ready() <-chan struct{} {
	return m.ready
}

// Addr returns the bound listen address after Ready.
func (m *Module) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

// Accept approves a pending controller.
func (m *Module) Accept(peer ws.PeerID, trust bool) {
	m.decisions <- decision{peer: peer, Decision: Decision{Accept: true, Trust: trust}}
}

// Reject declines a pending controller.
func (m *Module) Reject(peer ws.PeerID, reason string) {
	m.decisions <- decision{peer: peer, Decision: Decision{Reason: reason}}
}

// Run serves controllers until ctx is cancelled.
func (m *Module) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.config.Listen)
	if err != nil {
		return err
	}
	return m.Serve(ctx, ln)
}

// Serve runs the module on an existing listener.
func (m *Module) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	m.addr = ln.Addr()
	m.runCtx = ctx
	m.mu.Unlock()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- m.server.Serve(ctx, ln)
	}()

	if m.discovery != nil {
		port := remote.DefaultPort
		if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
			port = tcp.Port
		}
		if err := m.discovery.Advertise(ctx, m.config.Name, port, m.config.DeviceID); err != nil {
			m.log.Warn("failed to advertise player", zap.Error(err))
		}
		defer m.discovery.StopAdvertising()
	}

	pending, stopPending := m.player.PendingUpdates()
	defer stopPending()

	m.log.Info("remote player ready", zap.String("name", m.config.Name), zap.String("addr", ln.Addr().String()))
	m.readyOnce.Do(func() { close(m.ready) })

	events := m.server.Events()
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return <-serveErr
		case err := <-serveErr:
			m.shutdown()
			return err
		case ev, ok := <-events:
			if !ok {
				m.shutdown()
				return <-serveErr
			}
			m.handleEvent(ctx, ev)
		case list := <-pending:
			m.review(ctx, list)
		case d := <-m.decisions:
			m.apply(d)
		}
	}
}

func (m *Module) shutdown() {
	m.sync.Release(syncOwner)
	m.player.Reset()
}

func (m *Module) handleEvent(ctx context.Context, ev ws.Event) {
	switch ev.Kind {
	case ws.EventOpen:
		m.log.Debug("controller socket opened", zap.Uint64("peer", uint64(ev.Peer)), zap.String("remote", ev.Addr))
	case ws.EventClose:
		m.forget(ev.Peer)
		if m.player.PeerClosed(ev.Peer) {
			m.log.Info("controller disconnected", zap.Uint64("peer", uint64(ev.Peer)), zap.String("reason", ev.Reason))
			if !m.player.HasControllers() {
				m.sync.Release(syncOwner)
			}
		}
	case ws.EventMessage:
		m.handleMessage(ctx, ev.Peer, ev.Message)
	}
}

func (m *Module) handleMessage(ctx context.Context, peer ws.PeerID, msg remote.Message) {
	switch msg := msg.(type) {
	case remote.ConnectionRequest:
		m.log.Info("connection request", zap.String("device", msg.DeviceName), zap.String("device_id", msg.DeviceID))
		m.player.HandleConnectionRequest(peer, msg)
		return
	case remote.Disconnect:
		m.log.Info("controller requested disconnect", zap.Uint64("peer", uint64(peer)), zap.String("reason", msg.Reason))
		m.server.Close(peer, ws.NormalClosure, msg.Reason)
		return
	}

	if !m.player.IsAccepted(peer) {
		m.log.Warn("dropping message from unapproved peer", zap.Uint64("peer", uint64(peer)), zap.String("type", string(msg.Type())))
		return
	}
	if err := m.dispatcher.Dispatch(ctx, msg); err != nil {
		m.log.Warn("command failed", zap.String("type", string(msg.Type())), zap.Error(err))
		m.server.Send(peer, dispatch.ErrorFor(err))
	}
}

// review starts one approval per newly pending controller.
func (m *Module) review(ctx context.Context, list []connection.PendingConnection) {
	if m.approver == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pc := range list {
		if _, seen := m.reviewed[pc.Peer]; seen {
			continue
		}
		m.reviewed[pc.Peer] = struct{}{}
		go func(pc connection.PendingConnection) {
			d, err := m.approver.Review(ctx, pc)
			if err != nil {
				if ctx.Err() == nil {
					m.log.Warn("approval failed, rejecting", zap.String("device", pc.DeviceName), zap.Error(err))
				}
				d = Decision{}
			}
			select {
			case m.decisions <- decision{peer: pc.Peer, Decision: d}:
			case <-ctx.Done():
			}
		}(pc)
	}
}

func (m *Module) apply(d decision) {
	if d.Accept {
		if !m.player.Accept(d.peer, d.Trust) {
			m.log.Debug("accept ignored, no pending request", zap.Uint64("peer", uint64(d.peer)))
		}
		return
	}
	if !m.player.Reject(d.peer, d.Reason) {
		m.log.Debug("reject ignored, no pending request", zap.Uint64("peer", uint64(d.peer)))
	}
}

func (m *Module) forget(peer ws.PeerID) {
	m.mu.Lock()
	delete(m.reviewed, peer)
	m.mu.Unlock()
}

// onAccept runs on the event loop after a controller is accepted. A loop
// that was already running only reaches the new peer through a unicast.
func (m *Module) onAccept(peer ws.PeerID) {
	running := m.sync.Running()
	if !m.sync.Held(syncOwner) {
		m.mu.Lock()
		ctx := m.runCtx
		m.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}
		m.sync.Hold(ctx, syncOwner)
	}
	if running {
		m.server.Send(peer, m.engine.State())
	}
}

func (m *Module) broadcast(msg remote.Message) {
	m.server.SendTo(m.player.AcceptedPeers(), msg)
}
