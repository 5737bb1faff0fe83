package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/todolist-api/internal/model"
)

// DefaultSubscriberBuffer is the channel capacity given to subscribers.
const DefaultSubscriberBuffer = 16

// Hub fans events out to in-process subscribers. A subscriber whose
// buffer is full misses the event; Publish never blocks.
type Hub struct {
	logger *zap.Logger

	mu     sync.RWMutex
	subs   map[uint64]chan model.TodoEvent
	nextID uint64
	closed bool
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[uint64]chan model.TodoEvent),
	}
}

// Subscribe registers a subscriber with the given buffer size and returns
// its channel together with a function that unsubscribes and closes it.
func (h *Hub) Subscribe(buffer int) (<-chan model.TodoEvent, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	ch := make(chan model.TodoEvent, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers event to every subscriber that has room for it.
func (h *Hub) Publish(_ context.Context, event model.TodoEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil
	}

	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			eventsDroppedTotal.Inc()
			h.logger.Warn("dropping todo event for slow subscriber",
				zap.Uint64("subscriber", id),
				zap.String("type", string(event.Type)),
			)
		}
	}

	eventsPublishedTotal.WithLabelValues("hub", string(event.Type)).Inc()
	return nil
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Later publishes are ignored and
// later subscribers receive an already-closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}
