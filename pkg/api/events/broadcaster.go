package events

import (
	"sync"
	"time"
)

// Event is the canonical event payload broadcast to websocket subscribers.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Broadcaster broadcasts events to in-process subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster creates a broadcaster instance.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe subscribes to events with a buffered channel.
func (b *Broadcaster) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Broadcast broadcasts a generic event to all subscribers.
func (b *Broadcaster) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]chan Event, 0, len(b.subscribers))
	for ch := range b.subscribers {
		subs = append(subs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Drop on overflow to keep broadcasters non-blocking.
		}
	}
}

// BroadcastMemorySaved emits an event for a newly stored memory.
func (b *Broadcaster) BroadcastMemorySaved(
	id, memType, ownerID string,
	lowConfidence bool,
	createdAt time.Time,
) {
	payload := map[string]any{
		"id":         id,
		"type":       memType,
		"created_at": createdAt.UTC().Format(time.RFC3339Nano),
	}
	if ownerID != "" {
		payload["owner_id"] = ownerID
	}
	if lowConfidence {
		payload["low_confidence"] = true
	}

	b.Broadcast(Event{
		Type:    "memory.saved",
		Payload: payload,
	})
}

// BroadcastPatternTransition emits pattern.promoted or pattern.demoted
// depending on the direction of the state change. Transitions that are
// neither (for example candidate back to tracked during cleanup) are
// published as pattern.state_changed.
func (b *Broadcaster) BroadcastPatternTransition(
	patternID, fromState, toState string,
	successRate float64,
	occurrences int,
) {
	eventType := "pattern.state_changed"
	switch toState {
	case "candidate", "auto_applying":
		eventType = "pattern.promoted"
	case "demoted":
		eventType = "pattern.demoted"
	}

	b.Broadcast(Event{
		Type: eventType,
		Payload: map[string]any{
			"pattern_id":   patternID,
			"old_state":    fromState,
			"new_state":    toState,
			"success_rate": successRate,
			"occurrences":  occurrences,
		},
	})
}

// Close closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}
