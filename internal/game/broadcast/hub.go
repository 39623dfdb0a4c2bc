package broadcast

import (
	"context"
	"sync"

	"github.com/dungeontalk/dungeontalk/internal/game/domain"
)

const subscriberBuffer = 16

// Hub is an in-process Broadcaster. Subscribers receive on buffered
// channels; a slow subscriber loses messages rather than blocking the
// publisher.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[chan domain.Message]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[chan domain.Message]struct{})}
}

// Subscribe registers a subscriber for a room. The returned cancel func
// removes the subscription and closes the channel.
func (h *Hub) Subscribe(roomID string) (<-chan domain.Message, func()) {
	ch := make(chan domain.Message, subscriberBuffer)

	h.mu.Lock()
	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[chan domain.Message]struct{})
		h.rooms[roomID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.rooms[roomID]; ok {
			if _, present := subs[ch]; present {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.rooms, roomID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish implements Broadcaster.
func (h *Hub) Publish(ctx context.Context, roomID string, msg domain.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.rooms[roomID] {
		select {
		case ch <- msg:
		default:
			// Subscriber buffer full; drop.
		}
	}
	return nil
}
