package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/omochice/relay-chat/pkg/protocol"
	"go.uber.org/zap"
)

// DefaultOutgoingBuffer is the number of frames queued per peer before
// broadcasts start skipping it.
const DefaultOutgoingBuffer = 32

// Peer is a connected client.
type Peer struct {
	ID       string
	Conn     Conn
	Outgoing chan Frame
}

// NewPeer wraps conn with a fresh ID and outgoing queue.
func NewPeer(conn Conn) *Peer {
	return &Peer{
		ID:       uuid.NewString(),
		Conn:     conn,
		Outgoing: make(chan Frame, DefaultOutgoingBuffer),
	}
}

// Hub manages all connected peers and handles broadcast.
type Hub struct {
	peers  map[*Peer]bool
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewHub creates a new Hub. A nil logger discards logs.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		peers:  make(map[*Peer]bool),
		logger: logger,
	}
}

// Register adds a peer to the hub.
func (h *Hub) Register(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p] = true
	h.logger.Info("peer connected",
		zap.String("peer", p.ID),
		zap.String("remote", p.Conn.RemoteAddr()),
		zap.Int("peers", len(h.peers)))
}

// Unregister removes a peer from the hub.
func (h *Hub) Unregister(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.peers[p] {
		return
	}
	delete(h.peers, p)
	h.logger.Info("peer disconnected", zap.String("peer", p.ID), zap.Int("peers", len(h.peers)))
}

// ClientCount returns number of connected peers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Broadcast queues f on every peer, the sender included. Peers whose queue
// is full are skipped. It returns the number of peers the frame was queued for.
func (h *Hub) Broadcast(f Frame) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	queued := 0
	for p := range h.peers {
		select {
		case p.Outgoing <- f:
			queued++
		default:
			h.logger.Warn("peer queue full, skipping", zap.String("peer", p.ID))
		}
	}
	return queued
}

// HandleClient reads frames from p until its connection fails, forwarding
// each one to all peers. The peer is unregistered before it returns.
func (h *Hub) HandleClient(ctx context.Context, p *Peer) {
	defer h.Unregister(p)

	for {
		f, err := p.Conn.Read(ctx)
		if err != nil {
			h.logger.Debug("read ended", zap.String("peer", p.ID), zap.Error(err))
			return
		}

		fields := []zap.Field{zap.String("peer", p.ID), zap.Int("bytes", len(f.Data))}
		if env, err := protocol.ParseEnvelope(string(f.Data)); err == nil {
			fields = append(fields,
				zap.String("kind", string(env.Kind())),
				zap.String("target", env.Target))
		}
		h.logger.Info("relaying message", fields...)

		h.Broadcast(f)
	}
}

// CloseAll closes every registered peer connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for p := range h.peers {
		p.Conn.Close()
	}
}
