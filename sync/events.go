package sync

import (
	gosync "sync"
)

// Event types published while a pass runs.
const (
	EventState   = "state"
	EventAction  = "action"
	EventFailure = "failure"
)

// Event is one progress update from a running pass.
type Event struct {
	Type   string
	State  State
	Action Action
	Err    string
}

// EventBus fans pass progress out to subscribers, typically the CLI
// progress printer and the watch daemon's logger.
type EventBus struct {
	mu      gosync.RWMutex
	clients map[chan Event]struct{}
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		clients: make(map[chan Event]struct{}),
	}
}

// Subscribe registers a subscriber and returns its channel.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.clients, ch)
	b.mu.Unlock()
	close(ch)
}

// Publish sends an event to every subscriber. Slow subscribers are
// skipped rather than blocking the pass.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- event:
		default:
		}
	}
}
