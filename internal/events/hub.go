// Package events fans engine events out to subscribers. Delivery is
// best-effort: a subscriber whose buffer is full misses events, and no replay
// is offered after joining.
package events

import (
	"log"
	"sync"

	"botswarm.ai/internal/protocol"
)

type Hub struct {
	log *log.Logger

	mu     sync.Mutex
	subs   map[uint64]chan protocol.Event
	nextID uint64
	closed bool
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		log:  logger,
		subs: map[uint64]chan protocol.Event{},
	}
}

// Subscribe registers a new consumer. The channel is closed on Unsubscribe or
// hub Close.
func (h *Hub) Subscribe(buffer int) (uint64, <-chan protocol.Event) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan protocol.Event, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return 0, ch
	}
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	return id, ch
}

func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish delivers ev to every subscriber without blocking the caller.
func (h *Hub) Publish(ev protocol.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			if h.log != nil {
				h.log.Printf("subscriber %d lagging, dropped %s event", id, ev.Type)
			}
		}
	}
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// SubscriberCount is used by tests and the metrics endpoint.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
