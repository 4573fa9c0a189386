// Package chatlog holds the append-only list of lines shown in a chat session.
package chatlog

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omochice/relay-chat/pkg/protocol"
)

// Source says who produced an entry.
type Source int

const (
	SourceSelf Source = iota
	SourceServer
)

func (s Source) String() string {
	if s == SourceServer {
		return "server"
	}
	return "self"
}

// Entry is one line of the chat log.
type Entry struct {
	ID     uuid.UUID
	Source Source
	// Format is only meaningful for server entries.
	Format protocol.Format
	Mode   protocol.ChatMode
	Target string
	Text   string
	At     time.Time
}

// String renders the entry for display.
func (e Entry) String() string {
	switch {
	case e.Source == SourceSelf:
		return fmt.Sprintf("You: %s (to %s)", e.Text, e.Target)
	case e.Format == protocol.FormatRaw:
		return "Server (raw): " + e.Text
	default:
		return "Server: " + e.Text
	}
}

// Log is an ordered, append-only sequence of entries. Entries are never
// modified or removed.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	watchers map[int]func(Entry)
	nextID   int
	now      func() time.Time
}

// New creates an empty Log.
func New() *Log {
	return &Log{
		watchers: make(map[int]func(Entry)),
		now:      time.Now,
	}
}

// AppendSelf records a message the user sent.
func (l *Log) AppendSelf(mode protocol.ChatMode, target, content string) Entry {
	return l.append(Entry{Source: SourceSelf, Mode: mode, Target: target, Text: content})
}

// AppendServer records a decoded inbound message.
func (l *Log) AppendServer(d protocol.Decoded) Entry {
	return l.append(Entry{Source: SourceServer, Format: d.Format, Text: d.Text})
}

func (l *Log) append(e Entry) Entry {
	e.ID = uuid.New()

	l.mu.Lock()
	e.At = l.now()
	l.entries = append(l.entries, e)
	watchers := make([]func(Entry), 0, len(l.watchers))
	for _, fn := range l.watchers {
		watchers = append(watchers, fn)
	}
	l.mu.Unlock()

	for _, fn := range watchers {
		fn(e)
	}
	return e
}

// Entries returns a copy of all entries in append order.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Watch registers fn to be called with every appended entry.
func (l *Log) Watch(fn func(Entry)) (cancel func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	l.watchers[id] = fn

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.watchers, id)
	}
}
