// Package ws serves relay peers over WebSocket using gobwas/ws.
package ws

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/omochice/relay-chat/internal/chat"
)

const (
	closeWriteTimeout = time.Second
	// DefaultWriteTimeout bounds a write when the context has no deadline.
	DefaultWriteTimeout = 10 * time.Second
)

// Conn adapts an upgraded net.Conn to chat.Conn.
type Conn struct {
	conn       net.Conn
	remoteAddr string
	writeMu    sync.Mutex
	closing    atomic.Bool
	closeOnce  sync.Once
	closeErr   error
}

// NewConn wraps an upgraded connection, taking the remote address from it.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, remoteAddr: conn.RemoteAddr().String()}
}

// NewConnWithAddr wraps an upgraded connection with the specified remote address.
func NewConnWithAddr(conn net.Conn, addr string) *Conn {
	return &Conn{conn: conn, remoteAddr: addr}
}

// Read implements chat.Conn. Control frames are answered internally; a
// close frame from the peer ends the read with an error.
func (c *Conn) Read(ctx context.Context) (chat.Frame, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return chat.Frame{}, err
		}
	}
	data, op, err := wsutil.ReadClientData(controlWriter{c})
	if err != nil {
		return chat.Frame{}, err
	}
	return chat.Frame{Binary: op == ws.OpBinary, Data: data}, nil
}

// Write implements chat.Conn.
func (c *Conn) Write(ctx context.Context, f chat.Frame) error {
	op := ws.OpText
	if f.Binary {
		op = ws.OpBinary
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultWriteTimeout)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	// Checked after the deadline is set so a concurrent Close always
	// overrides it.
	if c.closing.Load() {
		return net.ErrClosed
	}
	return wsutil.WriteServerMessage(c.conn, op, f.Data)
}

// Close implements chat.Conn. It sends a close frame before closing the
// socket and is safe to call more than once. A write blocked on a peer that
// stopped reading is interrupted first.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		_ = c.conn.SetWriteDeadline(time.Now())
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(closeWriteTimeout))
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = wsutil.WriteServerMessage(c.conn, ws.OpClose, body)
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// controlWriter routes the control replies written while reading through
// the write lock.
type controlWriter struct {
	c *Conn
}

func (w controlWriter) Read(p []byte) (int, error) {
	return w.c.conn.Read(p)
}

func (w controlWriter) Write(p []byte) (int, error) {
	w.c.writeMu.Lock()
	defer w.c.writeMu.Unlock()
	return w.c.conn.Write(p)
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}
