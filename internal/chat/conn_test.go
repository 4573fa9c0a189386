package chat_test

import (
	"context"
	"io"
	"sync"

	"github.com/omochice/relay-chat/internal/chat"
)

// mockConn is a mock implementation of chat.Conn for testing.
type mockConn struct {
	readCh     chan chat.Frame
	writtenMu  sync.Mutex
	written    []chat.Frame
	closed     bool
	remoteAddr string
}

func newMockConn(addr string) *mockConn {
	return &mockConn{
		readCh:     make(chan chat.Frame, 10),
		remoteAddr: addr,
	}
}

func (m *mockConn) Read(ctx context.Context) (chat.Frame, error) {
	select {
	case <-ctx.Done():
		return chat.Frame{}, ctx.Err()
	case f, ok := <-m.readCh:
		if !ok {
			return chat.Frame{}, io.EOF
		}
		return f, nil
	}
}

func (m *mockConn) Write(ctx context.Context, f chat.Frame) error {
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	m.written = append(m.written, f)
	return nil
}

func (m *mockConn) Close() error {
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) RemoteAddr() string {
	return m.remoteAddr
}

func (m *mockConn) isClosed() bool {
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	return m.closed
}

// Compile-time check that mockConn implements chat.Conn
var _ chat.Conn = (*mockConn)(nil)
