package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/omochice/relay-chat/internal/chat"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Server handles WebSocket connections and delegates to Hub.
type Server struct {
	address  string
	hub      *chat.Hub
	logger   *zap.Logger
	listener net.Listener
	server   *http.Server

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New creates a WebSocket server that uses the provided Hub.
func New(address string, hub *chat.Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		address: address,
		hub:     hub,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	return s
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.logger.Info("WebSocket server started", zap.String("addr", listener.Addr().String()))
	return nil
}

// Serve accepts connections until Stop. Listen must have succeeded.
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("server is not listening")
	}
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Start listens and serves until Stop.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Stop stops accepting connections, closes every peer and waits for their
// goroutines to finish.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("shutdown", zap.Error(err))
	}
	s.cancel()
	s.hub.CloseAll()
	s.wg.Wait()
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	peer := chat.NewPeer(NewConnWithAddr(conn, r.RemoteAddr))

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		peer.Conn.Close()
		return
	}
	s.hub.Register(peer)
	s.wg.Add(2)
	s.mu.Unlock()

	go s.handleClient(peer)
	go s.writeLoop(peer)
}

func (s *Server) handleClient(peer *chat.Peer) {
	defer s.wg.Done()
	defer close(peer.Outgoing)
	defer peer.Conn.Close()
	s.hub.HandleClient(s.ctx, peer)
}

func (s *Server) writeLoop(peer *chat.Peer) {
	defer s.wg.Done()
	for f := range peer.Outgoing {
		if err := peer.Conn.Write(s.ctx, f); err != nil {
			s.logger.Warn("failed to write to peer", zap.String("peer", peer.ID), zap.Error(err))
			peer.Conn.Close()
			return
		}
	}
}
