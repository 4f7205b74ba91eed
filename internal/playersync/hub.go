package playersync

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey-austin/echo_remote/pkg/remote"
)

// Hub shares one Synchronizer between several outputs. The loop runs while
// at least one owner holds it and every message reaches every attached output.
type Hub struct {
	log  *zap.Logger
	sync *Synchronizer

	outMu   sync.RWMutex
	outputs []Broadcaster

	mu    sync.Mutex
	holds map[string]struct{}
}

// NewHub creates a hub with no outputs and no holds.
func NewHub(log *zap.Logger, source StateSource, opts Options) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{log: log, holds: map[string]struct{}{}}
	h.sync = New(log, source, BroadcastFunc(h.fanout), opts)
	return h
}

// Attach adds an output. Outputs receive messages in attach order.
func (h *Hub) Attach(out Broadcaster) {
	if out == nil {
		return
	}
	h.outMu.Lock()
	h.outputs = append(h.outputs, out)
	h.outMu.Unlock()
}

// Hold registers owner and starts the loop if it is the first hold.
func (h *Hub) Hold(ctx context.Context, owner string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.holds[owner]; ok {
		return
	}
	h.holds[owner] = struct{}{}
	h.log.Debug("sync hold", zap.String("owner", owner), zap.Int("holds", len(h.holds)))
	if len(h.holds) == 1 {
		h.sync.Start(ctx)
	}
}

// Release drops owner's hold and stops the loop once nobody holds it.
func (h *Hub) Release(owner string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.holds[owner]; !ok {
		return
	}
	delete(h.holds, owner)
	h.log.Debug("sync release", zap.String("owner", owner), zap.Int("holds", len(h.holds)))
	if len(h.holds) == 0 {
		h.sync.Stop()
	}
}

// Held reports whether owner currently holds the loop.
func (h *Hub) Held(owner string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.holds[owner]
	return ok
}

// Running reports whether the shared loop is active.
func (h *Hub) Running() bool {
	return h.sync.Running()
}

// Last returns the most recently broadcast snapshot.
func (h *Hub) Last() (remote.PlayerState, bool) {
	return h.sync.Last()
}

func (h *Hub) fanout(msg remote.Message) {
	h.outMu.RLock()
	outs := append([]Broadcaster(nil), h.outputs...)
	h.outMu.RUnlock()
	Multi(outs...).Broadcast(msg)
}
