package event

import (
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Handler consumes a published event.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a synchronous pub-sub bus. The orchestrator publishes lifecycle and
// runtime events into it; subscribers (the websocket server, the watcher
// wiring) attach without the publisher knowing them. Delivery happens on the
// publishing goroutine, so a subscriber observes events in the order the
// transitions occurred.
type Bus struct {
	mu       sync.RWMutex
	byType   map[string][]subscription
	wildcard []subscription
	lastID   atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{byType: make(map[string][]subscription)}
}

// Subscribe registers handler for one event type and returns an id for
// Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.lastID.Add(1)
	b.byType[eventType] = append(b.byType[eventType], subscription{id: id, handler: handler})
	return id
}

// SubscribeAll registers handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.lastID.Add(1)
	b.wildcard = append(b.wildcard, subscription{id: id, handler: handler})
	return id
}

// Unsubscribe removes a subscription and reports whether it existed.
func (b *Bus) Unsubscribe(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.byType {
		for i, sub := range subs {
			if sub.id == id {
				b.byType[eventType] = append(subs[:i], subs[i+1:]...)
				return true
			}
		}
	}
	for i, sub := range b.wildcard {
		if sub.id == id {
			b.wildcard = append(b.wildcard[:i], b.wildcard[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers the event to its type's handlers and then to the wildcard
// handlers, each group in registration order. A panicking handler is logged
// and recovered without blocking delivery to the rest.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := make([]subscription, 0, len(b.byType[e.EventType()])+len(b.wildcard))
	subs = append(subs, b.byType[e.EventType()]...)
	subs = append(subs, b.wildcard...)
	b.mu.RUnlock()

	for _, sub := range subs {
		deliver(sub.handler, e)
	}
}

func deliver(handler Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: handler panicked on %s event: %v\n%s",
				e.EventType(), r, debug.Stack())
		}
	}()
	handler(e)
}

// Clear drops every subscription.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byType = make(map[string][]subscription)
	b.wildcard = nil
}

// SubscriptionCount returns the number of live subscriptions, wildcard ones
// included.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.wildcard)
	for _, subs := range b.byType {
		count += len(subs)
	}
	return count
}
