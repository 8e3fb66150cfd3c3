// Package broadcast fans queue-changed signals out to every open view.
package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/contractqueue/backend/internal/model"
)

// subscriberBuffer - events held per subscriber before new ones are dropped
const subscriberBuffer = 16

// Publisher - anything that can announce a queue change
type Publisher interface {
	Publish(ctx context.Context, evt model.QueueEvent)
}

// Hub - in-process fan-out of QueueEvents
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan model.QueueEvent
}

func NewHub() *Hub {
	return &Hub{subs: map[int]chan model.QueueEvent{}}
}

// Subscribe registers a listener. The returned func unsubscribes and closes the channel.
func (h *Hub) Subscribe() (<-chan model.QueueEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan model.QueueEvent, subscriberBuffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

// Publish delivers evt to every subscriber without blocking; full subscribers miss it.
func (h *Hub) Publish(ctx context.Context, evt model.QueueEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			slog.WarnContext(ctx, "dropping queue event for slow subscriber",
				"subscriber", id,
				"reason", evt.Reason,
				"deal_id", evt.DealID,
			)
		}
	}
}

// Subscribers - current listener count
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
