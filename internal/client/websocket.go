package client

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// GorillaDialer dials the relay server with gorilla/websocket.
type GorillaDialer struct {
	Dialer *websocket.Dialer
}

// NewGorillaDialer returns a GorillaDialer using websocket.DefaultDialer.
func NewGorillaDialer() *GorillaDialer {
	return &GorillaDialer{Dialer: websocket.DefaultDialer}
}

// Dial implements Dialer.
func (d *GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return &gorillaConn{conn: conn}, nil
}

// gorillaConn adapts *websocket.Conn to Conn. gorilla reads are not
// context-aware; Client closes the connection when its context ends.
type gorillaConn struct {
	conn *websocket.Conn
}

func (c *gorillaConn) Read(ctx context.Context) (string, error) {
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if typ == websocket.TextMessage {
			return string(data), nil
		}
	}
}

func (c *gorillaConn) Write(ctx context.Context, payload string) error {
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(payload))
}

func (c *gorillaConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
