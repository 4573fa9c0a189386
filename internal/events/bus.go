// Package events routes named backend events to the handlers subscribed to
// them. A Bus is owned by one session; there is no global registry.
package events

import (
	"sync"
	"sync/atomic"
)

// Event is a single named notification from the backend.
type Event struct {
	Name    string
	Payload string
}

// Handler receives the events a subscription was registered for.
type Handler func(Event)

// Subscription is the handle returned by Bus.Subscribe.
type Subscription struct {
	bus      *Bus
	name     string
	id       uint64
	handler  Handler
	released atomic.Bool
	once     sync.Once
}

// Name returns the event name the subscription is bound to.
func (s *Subscription) Name() string {
	return s.name
}

// Release detaches the handler. After Release returns, no new deliveries
// reach it. Calling Release more than once, or after the bus was closed, is
// a no-op.
func (s *Subscription) Release() {
	s.once.Do(func() {
		s.released.Store(true)
		s.bus.remove(s)
	})
}

// Released reports whether Release has been called.
func (s *Subscription) Released() bool {
	return s.released.Load()
}

// Bus is a name-keyed dispatch table. Deliveries are serialized: no two
// handlers on the same bus run at the same time, and each Emit delivers to
// its subscribers in subscription order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*Subscription
	nextID uint64
	closed bool

	// deliver serializes handler execution.
	deliver sync.Mutex
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string][]*Subscription),
	}
}

// Subscribe registers handler for events named name. Subscribing on a
// closed bus returns an already-released subscription.
func (b *Bus) Subscribe(name string, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{bus: b, name: name, id: b.nextID, handler: handler}
	if b.closed {
		sub.released.Store(true)
		sub.once.Do(func() {})
		return sub
	}
	b.subs[name] = append(b.subs[name], sub)
	return sub
}

// Emit delivers ev to every live subscription for ev.Name and reports how
// many handlers ran. Handlers must not call Emit on the same bus.
func (b *Bus) Emit(ev Event) int {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return 0
	}
	targets := make([]*Subscription, len(b.subs[ev.Name]))
	copy(targets, b.subs[ev.Name])
	b.mu.RUnlock()

	b.deliver.Lock()
	defer b.deliver.Unlock()

	delivered := 0
	for _, sub := range targets {
		// Released while this event was in flight.
		if sub.released.Load() {
			continue
		}
		sub.handler(ev)
		delivered++
	}
	return delivered
}

// Count returns the number of live subscriptions for name.
func (b *Bus) Count(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

// Close releases every outstanding subscription. Later Emit calls deliver
// nothing. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscription
	for _, subs := range b.subs {
		all = append(all, subs...)
	}
	b.mu.Unlock()

	for _, sub := range all {
		sub.Release()
	}
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sub.name]
	for i, s := range subs {
		if s.id == sub.id {
			b.subs[sub.name] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.name]) == 0 {
		delete(b.subs, sub.name)
	}
}
