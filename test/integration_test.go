package test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/omochice/relay-chat/internal/chat"
	"github.com/omochice/relay-chat/internal/chatlog"
	"github.com/omochice/relay-chat/internal/client"
	"github.com/omochice/relay-chat/internal/client/ws"
	"github.com/omochice/relay-chat/internal/session"
	transport "github.com/omochice/relay-chat/internal/transport/ws"
	"github.com/omochice/relay-chat/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type participant struct {
	conn *client.Client
	sess *session.Controller
}

func join(t *testing.T, url string, dialer client.Dialer) *participant {
	t.Helper()

	conn := client.New(url, dialer, client.Options{ReconnectDelay: 50 * time.Millisecond})
	runErr := make(chan error, 1)
	go func() { runErr <- conn.Run(context.Background()) }()

	sess := session.Open(conn, session.Options{})
	t.Cleanup(func() {
		sess.Close()
		conn.Close()
		<-runErr
	})

	require.Eventually(t, func() bool { return sess.Status() == protocol.StatusConnected },
		2*time.Second, 10*time.Millisecond)
	return &participant{conn: conn, sess: sess}
}

func serverEntries(p *participant) []chatlog.Entry {
	var out []chatlog.Entry
	for _, e := range p.sess.Log().Entries() {
		if e.Source == chatlog.SourceServer {
			out = append(out, e)
		}
	}
	return out
}

// TestIntegration_PrivateMessage sends a private message through the relay
// and checks both logs.
func TestIntegration_PrivateMessage(t *testing.T) {
	hub := chat.NewHub(nil)
	srv := transport.New("127.0.0.1:0", hub, nil)
	require.NoError(t, srv.Listen())
	go srv.Serve()
	defer srv.Stop()

	url := "ws://" + srv.Addr() + "/ws"
	alice := join(t, url, ws.New())
	bob := join(t, url, client.NewGorillaDialer())

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	out := alice.sess.Submit(context.Background(), protocol.ModePrivate, "bob", "hi")
	require.NoError(t, out.Err)
	assert.Equal(t, "You: hi (to bob)", out.Entry.String())
	assert.Equal(t, "", alice.sess.Draft().Text)
	assert.Equal(t, "bob", alice.sess.Draft().Target)

	require.Eventually(t, func() bool { return len(serverEntries(bob)) == 1 }, 2*time.Second, 10*time.Millisecond)
	got := serverEntries(bob)[0]
	assert.Equal(t, protocol.FormatParsed, got.Format)
	assert.Contains(t, got.Text, `"recipient_id": "bob"`)
	assert.Contains(t, got.Text, `"content": "hi"`)
	assert.True(t, strings.HasPrefix(got.String(), "Server: {"))

	// The relay echoes to the sender too; both entries are kept.
	require.Eventually(t, func() bool { return alice.sess.Log().Len() == 2 }, 2*time.Second, 10*time.Millisecond)
}

// TestIntegration_StatusFollowsServer checks the status tracker when the
// relay goes away.
func TestIntegration_StatusFollowsServer(t *testing.T) {
	hub := chat.NewHub(nil)
	srv := transport.New("127.0.0.1:0", hub, nil)
	require.NoError(t, srv.Listen())
	go srv.Serve()

	p := join(t, "ws://"+srv.Addr()+"/ws", ws.New())

	srv.Stop()

	require.Eventually(t, func() bool {
		s := p.sess.Status()
		return s == protocol.StatusDisconnected || s == protocol.StatusConnecting
	}, 2*time.Second, 10*time.Millisecond)

	out := p.sess.Submit(context.Background(), protocol.ModeGroup, "g1", "anyone?")
	require.Error(t, out.Err)
	require.NotNil(t, out.Notice)
	assert.Equal(t, session.NoticeDispatch, out.Notice.Kind)
	assert.Equal(t, "anyone?", p.sess.Draft().Text)
}
