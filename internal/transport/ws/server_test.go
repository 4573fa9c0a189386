package ws_test

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	gobwas "github.com/gobwas/ws"

	"github.com/omochice/relay-chat/internal/chat"
	"github.com/omochice/relay-chat/internal/transport/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func startServer(t *testing.T) (*ws.Server, *chat.Hub) {
	t.Helper()
	hub := chat.NewHub(nil)
	srv := ws.New("127.0.0.1:0", hub, nil)
	require.NoError(t, srv.Listen())
	go srv.Serve()
	t.Cleanup(srv.Stop)
	return srv, hub
}

func dial(t *testing.T, srv *ws.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws://"+srv.Addr()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func TestServer_Addr(t *testing.T) {
	srv, _ := startServer(t)

	addr := srv.Addr()
	assert.NotEmpty(t, addr)
	assert.True(t, strings.Contains(addr, ":"), "Addr() = %q, expected host:port format", addr)
}

func TestServer_ClientRegistration(t *testing.T) {
	srv, hub := startServer(t)

	dial(t, srv)
	dial(t, srv)
	dial(t, srv)

	assert.Eventually(t, func() bool { return hub.ClientCount() == 3 }, time.Second, 10*time.Millisecond)
}

func TestServer_UnregistersOnDisconnect(t *testing.T) {
	srv, hub := startServer(t)

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "")

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestServer_RelaysToAllPeers(t *testing.T) {
	srv, hub := startServer(t)

	alice := dial(t, srv)
	bob := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	envelope := `{"type":"private_message","payload":{"recipient_id":"bob","content":"hi"}}`
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, alice.Write(ctx, websocket.MessageText, []byte(envelope)))

	for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
		typ, data, err := conn.Read(ctx)
		require.NoError(t, err, name)
		assert.Equal(t, websocket.MessageText, typ, name)
		assert.Equal(t, envelope, string(data), name)
	}
}

func TestServer_RelaysBinaryFrames(t *testing.T) {
	srv, hub := startServer(t)

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageBinary, []byte{0x01, 0x02}))

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageBinary, typ)
	assert.Equal(t, []byte{0x01, 0x02}, data)
}

func TestServer_Stop(t *testing.T) {
	hub := chat.NewHub(nil)
	srv := ws.New("127.0.0.1:0", hub, nil)
	require.NoError(t, srv.Listen())
	go srv.Serve()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	srv.Stop()
	srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Error(t, err)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel2()
	_, _, err = websocket.Dial(ctx2, "ws://"+srv.Addr()+"/ws", nil)
	assert.Error(t, err, "expected error after stop")
}

func TestServer_OnlyUpgradesWSPath(t *testing.T) {
	srv, _ := startServer(t)

	resp, err := http.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _, err = websocket.Dial(ctx, "ws://"+srv.Addr()+"/chat", nil)
	assert.Error(t, err)
}

func TestServer_StopWithStalledPeer(t *testing.T) {
	hub := chat.NewHub(nil)
	srv := ws.New("127.0.0.1:0", hub, nil)
	require.NoError(t, srv.Listen())
	go srv.Serve()

	// Upgrades and never reads, so relayed frames pile up in its socket.
	stalled, _, _, err := gobwas.Dial(context.Background(), "ws://"+srv.Addr()+"/ws")
	require.NoError(t, err)
	defer stalled.Close()

	sender := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	frame := bytes.Repeat([]byte("x"), 512<<10)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 30; i++ {
		if err := sender.Write(ctx, websocket.MessageText, frame); err != nil {
			break
		}
	}

	stopped := make(chan struct{})
	go func() {
		srv.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(8 * time.Second):
		t.Fatal("Stop did not return with a stalled peer")
	}
	assert.Equal(t, 0, hub.ClientCount())
}
