// Package events provides a small in-process event bus used to fan
// engine happenings out to the SSE stream and background listeners.
package events

import (
	"sync"
	"time"
)

// EventType identifies a category of engine event.
type EventType string

const (
	// SecurityEventFlagged fires when the audit guard flags an event
	// for moderator review.
	SecurityEventFlagged EventType = "security_event_flagged"
	// ManipulationDetected fires when the manipulation detector trips.
	ManipulationDetected EventType = "manipulation_detected"
	// PatternEvolved fires when a trading pattern mutates or breeds.
	PatternEvolved EventType = "pattern_evolved"
)

// Event is one published occurrence.
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine; keep them fast and non-blocking.
type Handler func(event *Event)

// Bus is a minimal publish/subscribe bus, safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(t EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// Publish delivers the event to every subscriber of its type.
func (b *Bus) Publish(t EventType, data interface{}) {
	event := &Event{Type: t, Data: data, Timestamp: time.Now().UTC()}

	b.mu.RLock()
	handlers := b.handlers[t]
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
