package main

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/omochice/relay-chat/internal/events"
	"github.com/omochice/relay-chat/internal/session"
	"github.com/omochice/relay-chat/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBackend struct {
	mu     sync.Mutex
	sent   []string
	events chan events.Event
}

func (b *recordingBackend) SendMessage(ctx context.Context, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, message)
	return nil
}

func (b *recordingBackend) Events() <-chan events.Event {
	return b.events
}

func newTestREPL(t *testing.T) (*repl, *recordingBackend, *bytes.Buffer) {
	t.Helper()
	backend := &recordingBackend{events: make(chan events.Event)}
	out := &bytes.Buffer{}
	sess := session.Open(backend, session.Options{
		OnNotice: func(n session.Notice) { printNotice(out, n) },
	})
	t.Cleanup(sess.Close)
	return &repl{sess: sess, out: out, sendTimeout: time.Second}, backend, out
}

func TestREPL_SendsMessage(t *testing.T) {
	r, backend, _ := newTestREPL(t)
	ctx := context.Background()

	assert.False(t, r.handleLine(ctx, "/group lobby"))
	assert.Equal(t, "[group lobby] > ", r.prompt())
	assert.False(t, r.handleLine(ctx, "hello all"))

	require.Len(t, backend.sent, 1)
	assert.Equal(t, `{"type":"group_message","payload":{"group_id":"lobby","content":"hello all"}}`, backend.sent[0])
	assert.Equal(t, "You: hello all (to lobby)", r.sess.Log().Entries()[0].String())
}

func TestREPL_ValidationNotice(t *testing.T) {
	r, backend, out := newTestREPL(t)

	r.handleLine(context.Background(), "hi")

	assert.Empty(t, backend.sent)
	assert.Contains(t, out.String(), "! ")
	assert.Equal(t, "hi", r.sess.Draft().Text)
}

func TestREPL_Commands(t *testing.T) {
	r, _, out := newTestREPL(t)
	ctx := context.Background()

	r.handleLine(ctx, "/private u1")
	r.handleLine(ctx, "/to u2")
	assert.Equal(t, session.Draft{Mode: protocol.ModePrivate, Target: "u2"}, r.sess.Draft())

	r.handleLine(ctx, "/to")
	assert.Contains(t, out.String(), "usage: /to <id>")

	r.handleLine(ctx, "/status")
	assert.Contains(t, out.String(), "Connection status: disconnected")

	r.handleLine(ctx, "/bogus")
	assert.Contains(t, out.String(), "unknown command /bogus")

	assert.False(t, r.handleLine(ctx, "   "))
	assert.True(t, r.handleLine(ctx, "/quit"))
}
