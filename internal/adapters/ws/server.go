package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// ShutdownReason is sent to every peer when the server stops.
const ShutdownReason = "Server shutting down"

// PeerID identifies one accepted websocket connection.
type PeerID uint64

// EventKind classifies server events.
type EventKind int

const (
	EventOpen EventKind = iota
	EventMessage
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event is delivered for every peer lifecycle change and decoded frame.
type Event struct {
	Kind    EventKind
	Peer    PeerID
	Addr    string
	Message remote.Message
	Reason  string
}

// ServerOptions tunes the server.
type ServerOptions struct {
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	EventBuffer  int
}

func (o ServerOptions) withDefaults() ServerOptions {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	return o
}

// Server accepts controller connections and speaks the remote protocol.
type Server struct {
	log      *zap.Logger
	opts     ServerOptions
	upgrader websocket.Upgrader
	events   chan Event
	done     chan struct{}
	nextID   atomic.Uint64

	mu     sync.Mutex
	peers  map[PeerID]*peer
	closed bool
	wg     sync.WaitGroup
}

type peer struct {
	id      PeerID
	addr    string
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu          sync.Mutex
	localReason string
}

// NewServer creates a websocket server.
func NewServer(log *zap.Logger, opts ServerOptions) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &Server{
		log:  log,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		events: make(chan Event, opts.EventBuffer),
		done:   make(chan struct{}),
		peers:  map[PeerID]*peer{},
	}
}

// Events returns the event stream. It is closed after Shutdown.
func (s *Server) Events() <-chan Event {
	return s.events
}

// Run listens on addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()
	s.log.Info("websocket server listening", zap.String("addr", ln.Addr().String()))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Shutdown(ShutdownReason)
			return err
		}
	}

	s.Shutdown(ShutdownReason)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("http shutdown", zap.Error(err))
	}
	return nil
}

// ServeHTTP upgrades the request and runs the peer read loop.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	p := &peer{
		id:   PeerID(s.nextID.Add(1)),
		addr: r.RemoteAddr,
		conn: conn,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.peers[p.id] = p
	s.mu.Unlock()

	s.log.Info("peer connected", zap.Uint64("peer", uint64(p.id)), zap.String("remote", p.addr))
	s.emit(Event{Kind: EventOpen, Peer: p.id, Addr: p.addr})
	s.readLoop(p)
}

func (s *Server) readLoop(p *peer) {
	reason := "connection closed"
	defer func() {
		s.mu.Lock()
		delete(s.peers, p.id)
		s.mu.Unlock()
		_ = p.conn.Close()
		s.log.Info("peer disconnected", zap.Uint64("peer", uint64(p.id)), zap.String("reason", reason))
		s.emit(Event{Kind: EventClose, Peer: p.id, Addr: p.addr, Reason: reason})
	}()

	for {
		_ = p.conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
		kind, data, err := p.conn.ReadMessage()
		if err != nil {
			p.mu.Lock()
			local := p.localReason
			p.mu.Unlock()
			if local != "" {
				reason = local
			} else {
				reason = describeReadError(err)
			}
			return
		}
		if kind != websocket.TextMessage {
			s.log.Warn("unexpected binary frame", zap.Uint64("peer", uint64(p.id)))
			continue
		}

		msg, err := remote.Decode(data)
		if err != nil {
			s.log.Warn("failed to parse message", zap.Uint64("peer", uint64(p.id)), zap.Error(err))
			s.write(p, remote.Error{Code: remote.ErrorUnknown, Message: "Failed to parse message"})
			continue
		}
		switch m := msg.(type) {
		case remote.Ping:
			s.write(p, remote.Pong{Timestamp: m.Timestamp})
			continue
		case remote.Pong:
			continue
		}
		s.log.Debug("received message", zap.Uint64("peer", uint64(p.id)), zap.String("type", string(msg.Type())))
		s.emit(Event{Kind: EventMessage, Peer: p.id, Addr: p.addr, Message: msg})
	}
}

func (s *Server) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Server) lookup(id PeerID) *peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers[id]
}

// Send writes msg to one peer. A missing peer is logged and ignored.
func (s *Server) Send(id PeerID, msg remote.Message) {
	p := s.lookup(id)
	if p == nil {
		s.log.Warn("cannot send, peer not open", zap.Uint64("peer", uint64(id)), zap.String("type", string(remote.TypeOf(msg))))
		return
	}
	s.write(p, msg)
}

// Broadcast writes msg to every open peer.
func (s *Server) Broadcast(msg remote.Message) {
	data, err := remote.Encode(msg)
	if err != nil {
		s.log.Error("encode broadcast", zap.Error(err))
		return
	}
	for _, p := range s.snapshot() {
		s.writeRaw(p, data)
	}
}

// SendTo writes msg to the listed peers.
func (s *Server) SendTo(ids []PeerID, msg remote.Message) {
	if len(ids) == 0 {
		return
	}
	data, err := remote.Encode(msg)
	if err != nil {
		s.log.Error("encode message", zap.Error(err))
		return
	}
	for _, id := range ids {
		if p := s.lookup(id); p != nil {
			s.writeRaw(p, data)
		}
	}
}

// Peers returns the ids of all open peers.
func (s *Server) Peers() []PeerID {
	peers := s.snapshot()
	out := make([]PeerID, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.id)
	}
	return out
}

func (s *Server) snapshot() []*peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

// Close closes one peer with code and reason.
func (s *Server) Close(id PeerID, code int, reason string) {
	p := s.lookup(id)
	if p == nil {
		return
	}
	s.closePeer(p, code, reason)
}

// DisconnectClient sends Disconnect{reason} and closes the peer normally.
func (s *Server) DisconnectClient(id PeerID, reason string) {
	p := s.lookup(id)
	if p == nil {
		return
	}
	s.write(p, remote.Disconnect{Reason: reason})
	s.closePeer(p, NormalClosure, reason)
}

// Shutdown broadcasts Disconnect{reason}, closes every peer and waits for
// their read loops to exit. Events is closed on return.
func (s *Server) Shutdown(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.Broadcast(remote.Disconnect{Reason: reason})
	for _, p := range s.snapshot() {
		s.closePeer(p, NormalClosure, reason)
	}
	close(s.done)
	s.wg.Wait()
	close(s.events)
}

func (s *Server) closePeer(p *peer, code int, reason string) {
	p.mu.Lock()
	if p.localReason == "" {
		p.localReason = reason
		if p.localReason == "" {
			p.localReason = "closed locally"
		}
	}
	p.mu.Unlock()

	p.writeMu.Lock()
	deadline := time.Now().Add(s.opts.WriteTimeout)
	_ = p.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	p.writeMu.Unlock()
	_ = p.conn.Close()
}

func (s *Server) write(p *peer, msg remote.Message) {
	data, err := remote.Encode(msg)
	if err != nil {
		s.log.Error("encode message", zap.String("type", string(msg.Type())), zap.Error(err))
		return
	}
	s.writeRaw(p, data)
}

func (s *Server) writeRaw(p *peer, data []byte) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.log.Warn("write failed", zap.Uint64("peer", uint64(p.id)), zap.Error(err))
		_ = p.conn.Close()
	}
}
