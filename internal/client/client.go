// Package client maintains the connection to the relay server. It turns
// received frames and connection changes into named events and sends
// outbound envelopes.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/omochice/relay-chat/internal/events"
	"github.com/omochice/relay-chat/pkg/protocol"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned by SendMessage while no connection is up.
	ErrNotConnected = errors.New("not connected to server")
	// ErrClosed is returned by SendMessage after Close.
	ErrClosed = errors.New("client closed")
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultDialTimeout    = 10 * time.Second
	defaultEventBuffer    = 64
)

// Options configures a Client.
type Options struct {
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
	Logger      *zap.Logger
}

// Client is a reconnecting connection to the relay server.
type Client struct {
	url    string
	dialer Dialer
	opts   Options
	logger *zap.Logger

	events chan events.Event

	mu      sync.RWMutex
	conn    Conn
	status  string
	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Client for url. Nothing is dialed until Run.
func New(url string, dialer Dialer, opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:    url,
		dialer: dialer,
		opts:   opts,
		logger: logger.With(zap.String("url", url)),
		events: make(chan events.Event, opts.EventBuffer),
		status: protocol.StatusDisconnected,
		done:   make(chan struct{}),
	}
}

// Events returns the event stream. It is closed when Run returns.
func (c *Client) Events() <-chan events.Event {
	return c.events
}

// Status returns the last connection status the client reported.
func (c *Client) Status() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// IsConnected reports whether a connection is currently up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Run connects and keeps reconnecting until ctx is cancelled or Close is
// called. Every received data frame is emitted as a "new-message" event and
// every connection change as a "connection-status" event.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	for {
		if err := c.stopErr(ctx); err != nil {
			return ignoreClosed(err)
		}

		c.setStatus(ctx, protocol.StatusConnecting)
		c.logger.Info("connecting to server")

		dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
		conn, err := c.dialer.Dial(dialCtx, c.url)
		cancel()

		if err != nil {
			c.logger.Warn("failed to connect to server", zap.Error(err))
			c.setStatus(ctx, protocol.StatusDisconnected)
		} else {
			c.serve(ctx, conn)
			if err := c.stopErr(ctx); err != nil {
				return ignoreClosed(err)
			}
			c.setStatus(ctx, protocol.StatusDisconnected)
		}

		c.logger.Info("reconnecting", zap.Duration("delay", c.opts.ReconnectDelay))
		timer := time.NewTimer(c.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-c.done:
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// serve reads from conn until it fails or the client stops.
func (c *Client) serve(ctx context.Context, conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	// Close may have run between Dial and here.
	select {
	case <-c.done:
		c.dropConn(conn)
		return
	default:
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer c.dropConn(conn)

	c.logger.Info("connected to server")
	c.setStatus(ctx, protocol.StatusConnected)

	for {
		payload, err := conn.Read(ctx)
		if err != nil {
			if c.stopErr(ctx) == nil {
				c.logger.Warn("connection lost", zap.Error(err))
			}
			return
		}
		c.logger.Debug("received message", zap.Int("bytes", len(payload)))
		c.emit(ctx, events.Event{Name: protocol.EventNewMessage, Payload: payload})
	}
}

// SendMessage writes message as one text frame on the current connection.
// A write failure drops the connection so Run reconnects.
func (c *Client) SendMessage(ctx context.Context, message string) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	err := conn.Write(ctx, message)
	c.writeMu.Unlock()
	if err != nil {
		c.dropConn(conn)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close stops Run and closes the current connection. It is idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
	})
}

func (c *Client) dropConn(conn Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

func (c *Client) setStatus(ctx context.Context, status string) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	c.emit(ctx, events.Event{Name: protocol.EventConnectionStatus, Payload: status})
}

// emit blocks until the event is buffered or the client stops.
func (c *Client) emit(ctx context.Context, ev events.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	case <-ctx.Done():
	}
}

func (c *Client) stopErr(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	return ctx.Err()
}

func ignoreClosed(err error) error {
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}
