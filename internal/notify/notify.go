// Package notify carries the fire-and-forget real-time surface: settlement
// events fan out to websocket clients via an in-process bus and are
// optionally mirrored to Redis pub/sub for other processes. Delivery is
// best-effort everywhere; a lost notification is never an error.
package notify

import (
	"context"
	"sync"
)

// Event is one real-time notification. An empty UserIDs list broadcasts.
type Event struct {
	Type    string   `json:"type"`
	UserIDs []string `json:"user_ids,omitempty"`
	Data    any      `json:"data,omitempty"`
}

// Targets reports whether the event is addressed to userID.
func (e Event) Targets(userID string) bool {
	if len(e.UserIDs) == 0 {
		return true
	}
	for _, id := range e.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Notifier delivers events best-effort.
type Notifier interface {
	Emit(ctx context.Context, evt Event)
}

// Bus is the in-process pub/sub backing the websocket hub. Slow subscribers
// drop events instead of blocking the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 100)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Bus) Emit(ctx context.Context, evt Event) {
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.RUnlock()
}

// Fanout emits to every wrapped notifier.
type Fanout []Notifier

func (f Fanout) Emit(ctx context.Context, evt Event) {
	for _, n := range f {
		n.Emit(ctx, evt)
	}
}

// Discard swallows every event; used where no notifier is wired.
type Discard struct{}

func (Discard) Emit(context.Context, Event) {}
