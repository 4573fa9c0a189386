// Package status tracks the connection status reported by the backend.
package status

import (
	"sync"

	"github.com/omochice/relay-chat/pkg/protocol"
)

// Tracker holds the latest connection status. Update overwrites it without
// checking the value against any vocabulary; no history is kept.
type Tracker struct {
	mu       sync.RWMutex
	current  string
	watchers map[int]func(string)
	nextID   int
}

// NewTracker returns a Tracker initialized to "disconnected".
func NewTracker() *Tracker {
	return &Tracker{
		current:  protocol.StatusDisconnected,
		watchers: make(map[int]func(string)),
	}
}

// Status returns the current value.
func (t *Tracker) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Update replaces the current value and notifies watchers with it.
func (t *Tracker) Update(status string) {
	t.mu.Lock()
	t.current = status
	watchers := make([]func(string), 0, len(t.watchers))
	for _, fn := range t.watchers {
		watchers = append(watchers, fn)
	}
	t.mu.Unlock()

	for _, fn := range watchers {
		fn(status)
	}
}

// Watch registers fn to be called after every Update. The returned func
// removes it.
func (t *Tracker) Watch(fn func(status string)) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	t.watchers[id] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.watchers, id)
	}
}
