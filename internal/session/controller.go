// Package session implements the client side of a chat session: it keeps
// the draft and the chat log, submits outgoing messages and applies the
// events coming from the backend.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/omochice/relay-chat/internal/chatlog"
	"github.com/omochice/relay-chat/internal/events"
	"github.com/omochice/relay-chat/internal/status"
	"github.com/omochice/relay-chat/pkg/protocol"
	"go.uber.org/zap"
)

// ErrClosed is returned by submits on a closed session.
var ErrClosed = errors.New("session closed")

// Backend is the connection a session talks through.
type Backend interface {
	// SendMessage delivers one serialized envelope.
	SendMessage(ctx context.Context, message string) error
	// Events returns the stream of backend events. It is closed when the
	// backend shuts down.
	Events() <-chan events.Event
}

// Draft is the not-yet-submitted input.
type Draft struct {
	Mode   protocol.ChatMode
	Target string
	Text   string
}

// Outcome describes how a submit settled.
type Outcome struct {
	// Entry is the log entry appended on success.
	Entry *chatlog.Entry
	// Notice is set when the submit was refused or failed.
	Notice *Notice
	Err    error
	// Discarded is true when the response arrived after Close.
	Discarded bool
}

// Options configures a Controller.
type Options struct {
	Logger *zap.Logger
	// OnNotice receives every validation and dispatch notice.
	OnNotice func(Notice)
	// OnTransition observes submit state changes.
	OnTransition func(from, to SubmitState)
}

// Controller owns a chat session. Open subscribes it to the backend's events;
// Close releases the subscriptions.
type Controller struct {
	backend Backend
	bus     *events.Bus
	tracker *status.Tracker
	log     *chatlog.Log
	logger  *zap.Logger
	opts    Options

	mu       sync.Mutex
	draft    Draft
	inFlight atomic.Int32

	subs      []*events.Subscription
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Open starts a session on backend. The caller must call Close.
func Open(backend Backend, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Controller{
		backend: backend,
		bus:     events.NewBus(),
		tracker: status.NewTracker(),
		log:     chatlog.New(),
		logger:  logger,
		opts:    opts,
		done:    make(chan struct{}),
	}

	c.subs = []*events.Subscription{
		c.bus.Subscribe(protocol.EventNewMessage, c.handleNewMessage),
		c.bus.Subscribe(protocol.EventConnectionStatus, c.handleStatus),
	}

	c.wg.Add(1)
	go c.pump()

	return c
}

// Close releases the session's subscriptions exactly once and stops
// consuming backend events. It does not abort submits in flight; their
// results are discarded. Close is safe to call repeatedly and after the
// backend is gone.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		for _, sub := range c.subs {
			sub.Release()
		}
		c.bus.Close()
		close(c.done)
		c.wg.Wait()
		c.logger.Debug("session closed", zap.Int("log_entries", c.log.Len()))
	})
}

// Closed reports whether Close was called.
func (c *Controller) Closed() bool {
	return c.closed.Load()
}

// Log returns the session's chat log. Callers only read it.
func (c *Controller) Log() *chatlog.Log {
	return c.log
}

// Tracker returns the connection status tracker.
func (c *Controller) Tracker() *status.Tracker {
	return c.tracker
}

// Status returns the current connection status.
func (c *Controller) Status() string {
	return c.tracker.Status()
}

// InFlight returns the number of submits waiting on the backend.
func (c *Controller) InFlight() int {
	return int(c.inFlight.Load())
}

// Draft returns a copy of the draft state.
func (c *Controller) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SetMode changes the chat mode of the draft.
func (c *Controller) SetMode(mode protocol.ChatMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.Mode = mode
}

// SetTarget changes the target identifier of the draft.
func (c *Controller) SetTarget(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.Target = target
}

// SetDraft changes the draft text.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.Text = text
}

// Submit replaces the whole draft and submits it.
func (c *Controller) Submit(ctx context.Context, mode protocol.ChatMode, target, text string) Outcome {
	c.mu.Lock()
	c.draft = Draft{Mode: mode, Target: target, Text: text}
	c.mu.Unlock()
	return c.SubmitDraft(ctx)
}

// SubmitDraft validates the current draft and sends it. An empty target or
// text is refused without calling the backend. On success the text is
// cleared and the target and mode are kept; on failure the draft is left
// as it was.
func (c *Controller) SubmitDraft(ctx context.Context) Outcome {
	if c.closed.Load() {
		return Outcome{Err: ErrClosed}
	}

	draft := c.Draft()

	c.transition(StateIdle, StateValidating)
	data, err := protocol.Encode(draft.Mode, draft.Target, draft.Text)
	if err != nil {
		c.transition(StateValidating, StateIdle)
		n := Notice{Kind: NoticeValidation, Message: "Enter a target ID and a message.", Err: err}
		c.notify(n)
		return Outcome{Notice: &n, Err: err}
	}

	c.transition(StateValidating, StateDispatching)
	c.inFlight.Add(1)
	err = c.backend.SendMessage(ctx, data)
	c.inFlight.Add(-1)
	c.transition(StateDispatching, StateSettled)
	defer c.transition(StateSettled, StateIdle)

	if c.closed.Load() {
		c.logger.Debug("discarding submit result after close",
			zap.String("target", draft.Target),
			zap.Error(err))
		return Outcome{Discarded: true, Err: ErrClosed}
	}

	if err != nil {
		derr := &DispatchError{Err: err}
		c.logger.Warn("send failed",
			zap.String("mode", draft.Mode.String()),
			zap.String("target", draft.Target),
			zap.Error(err))
		n := Notice{Kind: NoticeDispatch, Message: "Send error: " + err.Error(), Err: derr}
		c.notify(n)
		return Outcome{Notice: &n, Err: derr}
	}

	entry := c.log.AppendSelf(draft.Mode, draft.Target, draft.Text)
	c.SetDraft("")
	return Outcome{Entry: &entry}
}

func (c *Controller) transition(from, to SubmitState) {
	if c.opts.OnTransition != nil {
		c.opts.OnTransition(from, to)
	}
}

func (c *Controller) notify(n Notice) {
	if c.opts.OnNotice != nil {
		c.opts.OnNotice(n)
	}
}

// pump delivers backend events to the bus one at a time.
func (c *Controller) pump() {
	defer c.wg.Done()

	stream := c.backend.Events()
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-stream:
			if !ok {
				c.logger.Debug("backend event stream closed")
				return
			}
			c.bus.Emit(ev)
		}
	}
}

func (c *Controller) handleNewMessage(ev events.Event) {
	decoded := protocol.Decode(ev.Payload)
	if decoded.Raw() {
		c.logger.Debug("showing message as raw text", zap.Error(decoded.Err))
	}
	c.log.AppendServer(decoded)
}

func (c *Controller) handleStatus(ev events.Event) {
	c.tracker.Update(ev.Payload)
}
