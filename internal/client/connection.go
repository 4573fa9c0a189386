package client

import (
	"context"
)

// Conn is one established connection to the relay server.
type Conn interface {
	// Read returns the payload of the next text frame. Binary frames are
	// skipped and control frames are handled by the implementation.
	Read(ctx context.Context) (string, error)

	// Write sends payload as a single text frame.
	Write(ctx context.Context, payload string) error

	// Close closes the connection.
	Close() error
}

// Dialer opens connections to the relay server.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}
