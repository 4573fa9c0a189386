// Package ws provides a relay server dialer built on nhooyr.io/websocket.
package ws

import (
	"context"
	"fmt"

	"github.com/omochice/relay-chat/internal/client"
	"nhooyr.io/websocket"
)

// DefaultReadLimit is the largest frame accepted from the server.
const DefaultReadLimit = 1 << 20

// Dialer dials the relay server with nhooyr.io/websocket.
type Dialer struct {
	Options   *websocket.DialOptions
	ReadLimit int64
}

// New returns a Dialer with default options.
func New() *Dialer {
	return &Dialer{ReadLimit: DefaultReadLimit}
}

// Dial implements client.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (client.Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, d.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &Conn{conn: conn}, nil
}

// Conn adapts *websocket.Conn to client.Conn.
type Conn struct {
	conn *websocket.Conn
}

// Read implements client.Conn. Binary frames are skipped.
func (c *Conn) Read(ctx context.Context) (string, error) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return "", err
		}
		if typ == websocket.MessageText {
			return string(data), nil
		}
	}
}

// Write implements client.Conn.
func (c *Conn) Write(ctx context.Context, payload string) error {
	return c.conn.Write(ctx, websocket.MessageText, []byte(payload))
}

// Close implements client.Conn.
func (c *Conn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
