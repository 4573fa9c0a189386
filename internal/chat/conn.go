// Package chat implements the relay: every frame a peer sends is forwarded
// to all connected peers.
package chat

import "context"

// Frame is one WebSocket data frame.
type Frame struct {
	Binary bool
	Data   []byte
}

// Conn abstracts a peer connection so the hub does not depend on a
// particular WebSocket library.
type Conn interface {
	// Read reads a single data frame.
	// Returns io.EOF when connection is closed.
	Read(ctx context.Context) (Frame, error)

	// Write sends a single data frame.
	Write(ctx context.Context, f Frame) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
