package connection

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/echo_remote/internal/adapters/ws"
	"github.com/mikey-austin/echo_remote/internal/dispatch"
	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// PeerSender is the part of the transport server the player side needs.
type PeerSender interface {
	Send(peer ws.PeerID, msg remote.Message)
	Close(peer ws.PeerID, code int, reason string)
}

// PendingConnection is a handshake awaiting a pairing decision.
type PendingConnection struct {
	Peer          ws.PeerID              `json:"peer"`
	DeviceName    string                 `json:"deviceName"`
	DeviceID      string                 `json:"deviceId"`
	Extensions    []string               `json:"installedExtensions"`
	CreatedAt     time.Time              `json:"createdAt"`
	Compatibility dispatch.Compatibility `json:"compatibility"`
}

// ControllerInfo describes an accepted controller.
type ControllerInfo struct {
	Peer       ws.PeerID
	DeviceID   string
	DeviceName string
}

type controllerEntry struct {
	deviceID   string
	deviceName string
	accepted   bool
}

// PlayerOptions configures the player-side manager.
type PlayerOptions struct {
	// DeviceName is reported in every ConnectionResponse.
	DeviceName string
	// OnAccept runs after an accept response was sent.
	OnAccept func(peer ws.PeerID)
	Now      func() time.Time
}

// Player owns the controller table and the pending pairing list.
type Player struct {
	log       *zap.Logger
	sender    PeerSender
	trust     *TrustStore
	validator *dispatch.Validator
	opts      PlayerOptions

	mu       sync.Mutex
	table    map[ws.PeerID]*controllerEntry
	pending  []PendingConnection
	watchers map[chan []PendingConnection]struct{}
}

// NewPlayer creates the player-side manager. validator may be nil.
func NewPlayer(log *zap.Logger, sender PeerSender, trust *TrustStore, validator *dispatch.Validator, opts PlayerOptions) *Player {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Player{
		log:       log,
		sender:    sender,
		trust:     trust,
		validator: validator,
		opts:      opts,
		table:     map[ws.PeerID]*controllerEntry{},
		watchers:  map[chan []PendingConnection]struct{}{},
	}
}

// HandleConnectionRequest records req for peer. Trusted devices are
// accepted immediately and true is returned; others join the pending list.
func (p *Player) HandleConnectionRequest(peer ws.PeerID, req remote.ConnectionRequest) bool {
	var compat dispatch.Compatibility
	if p.validator != nil {
		compat = p.validator.CheckCompatibility(req.InstalledExtensions)
		if !compat.Compatible {
			p.log.Warn("controller shares no extensions",
				zap.String("device", req.DeviceName),
				zap.Strings("missing_on_local", compat.MissingOnLocal),
			)
		}
	}

	p.mu.Lock()
	if entry, ok := p.table[peer]; ok && entry.accepted {
		p.mu.Unlock()
		p.log.Warn("duplicate connection request from accepted controller", zap.String("device", req.DeviceName))
		p.sender.Send(peer, remote.Accepted(p.opts.DeviceName))
		return true
	}
	for _, pc := range p.pending {
		if pc.Peer == peer {
			p.mu.Unlock()
			p.log.Warn("duplicate connection request", zap.String("device", req.DeviceName))
			return false
		}
	}
	p.table[peer] = &controllerEntry{deviceID: req.DeviceID, deviceName: req.DeviceName}

	if p.trust != nil && p.trust.Contains(req.DeviceID) {
		p.table[peer].accepted = true
		p.mu.Unlock()
		p.log.Info("auto-accepting connection from trusted device", zap.String("device", req.DeviceName))
		p.sender.Send(peer, remote.Accepted(p.opts.DeviceName))
		p.notifyAccepted(peer)
		return true
	}

	p.pending = append(p.pending, PendingConnection{
		Peer:          peer,
		DeviceName:    req.DeviceName,
		DeviceID:      req.DeviceID,
		Extensions:    append([]string(nil), req.InstalledExtensions...),
		CreatedAt:     p.opts.Now(),
		Compatibility: compat,
	})
	p.publishLocked()
	p.mu.Unlock()
	p.log.Info("connection request awaiting user approval", zap.String("device", req.DeviceName))
	return false
}

// Accept resolves a pending request. It returns false when peer has no
// pending entry, so a second call is a no-op.
func (p *Player) Accept(peer ws.PeerID, trust bool) bool {
	p.mu.Lock()
	pc, ok := p.takePendingLocked(peer)
	if !ok {
		p.mu.Unlock()
		return false
	}
	if entry := p.table[peer]; entry != nil {
		entry.accepted = true
	}
	p.publishLocked()
	p.mu.Unlock()

	if trust && p.trust != nil {
		if err := p.trust.Add(pc.DeviceID, pc.DeviceName); err != nil {
			p.log.Error("error trusting device", zap.String("device", pc.DeviceName), zap.Error(err))
		}
	}
	p.sender.Send(peer, remote.Accepted(p.opts.DeviceName))
	p.log.Info("accepted connection", zap.String("device", pc.DeviceName), zap.Bool("trusted", trust))
	p.notifyAccepted(peer)
	return true
}

// Reject declines a pending request and closes the transport normally.
func (p *Player) Reject(peer ws.PeerID, reason string) bool {
	if reason == "" {
		reason = DefaultRejectReason
	}
	p.mu.Lock()
	pc, ok := p.takePendingLocked(peer)
	if !ok {
		p.mu.Unlock()
		return false
	}
	delete(p.table, peer)
	p.publishLocked()
	p.mu.Unlock()

	p.sender.Send(peer, remote.Rejected(p.opts.DeviceName, reason))
	p.sender.Close(peer, ws.NormalClosure, reason)
	p.log.Info("rejected connection", zap.String("device", pc.DeviceName), zap.String("reason", reason))
	return true
}

// PeerClosed forgets peer. It reports whether the peer was an accepted
// controller.
func (p *Player) PeerClosed(peer ws.PeerID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry := p.table[peer]
	delete(p.table, peer)
	if _, ok := p.takePendingLocked(peer); ok {
		p.publishLocked()
	}
	return entry != nil && entry.accepted
}

// IsAccepted reports whether peer completed the handshake.
func (p *Player) IsAccepted(peer ws.PeerID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry := p.table[peer]
	return entry != nil && entry.accepted
}

// Controllers lists accepted controllers.
func (p *Player) Controllers() []ControllerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ControllerInfo, 0, len(p.table))
	for peer, entry := range p.table {
		if entry.accepted {
			out = append(out, ControllerInfo{Peer: peer, DeviceID: entry.deviceID, DeviceName: entry.deviceName})
		}
	}
	return out
}

// AcceptedPeers lists the peer ids of accepted controllers.
func (p *Player) AcceptedPeers() []ws.PeerID {
	controllers := p.Controllers()
	out := make([]ws.PeerID, 0, len(controllers))
	for _, c := range controllers {
		out = append(out, c.Peer)
	}
	return out
}

// HasControllers reports whether any controller is accepted.
func (p *Player) HasControllers() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, entry := range p.table {
		if entry.accepted {
			return true
		}
	}
	return false
}

// Pending returns a copy of the pending list in arrival order.
func (p *Player) Pending() []PendingConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.copyPendingLocked()
}

// PendingUpdates streams the pending list after every change, starting
// with the current list. Slow readers only see the latest list.
func (p *Player) PendingUpdates() (<-chan []PendingConnection, func()) {
	ch := make(chan []PendingConnection, 1)
	p.mu.Lock()
	p.watchers[ch] = struct{}{}
	ch <- p.copyPendingLocked()
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watchers, ch)
			p.mu.Unlock()
			close(ch)
		})
	}
}

// Reset forgets every controller and pending request.
func (p *Player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.table = map[ws.PeerID]*controllerEntry{}
	if len(p.pending) > 0 {
		p.pending = nil
		p.publishLocked()
	}
}

func (p *Player) notifyAccepted(peer ws.PeerID) {
	if p.opts.OnAccept != nil {
		p.opts.OnAccept(peer)
	}
}

func (p *Player) takePendingLocked(peer ws.PeerID) (PendingConnection, bool) {
	for i, pc := range p.pending {
		if pc.Peer == peer {
			p.pending = append(p.pending[:i:i], p.pending[i+1:]...)
			return pc, true
		}
	}
	return PendingConnection{}, false
}

func (p *Player) copyPendingLocked() []PendingConnection {
	out := make([]PendingConnection, len(p.pending))
	copy(out, p.pending)
	return out
}

func (p *Player) publishLocked() {
	for ch := range p.watchers {
		snapshot := p.copyPendingLocked()
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}
