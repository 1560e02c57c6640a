// Package events fans conversation turns out to live subscribers, such as
// the websocket feed on the HTTP API.
package events

import (
	"sync"
	"time"
)

// TurnEvent describes one turn of a call, published as it is recorded.
type TurnEvent struct {
	CallSID   string    `json:"call_sid"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Intent    string    `json:"intent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const subscriberBuffer = 32

// Hub is a broadcast channel for turn events. Publish never blocks; slow
// subscribers lose events rather than stalling call handling.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan TurnEvent
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan TurnEvent)}
}

// Subscribe registers a listener. The returned cancel function must be
// called to release it; after cancel the channel is closed.
func (h *Hub) Subscribe() (<-chan TurnEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan TurnEvent, subscriberBuffer)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber with buffer room.
func (h *Hub) Publish(ev TurnEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
