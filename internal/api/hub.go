package api

import (
	"sync"
	"sync/atomic"

	"github.com/PiranhaCodes/ptyhost/internal/logging"
	"github.com/PiranhaCodes/ptyhost/internal/pty"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultEventBuffer is the per-subscriber queue length.
const DefaultEventBuffer = 1024

// Subscription is one consumer's view of the event stream.
type Subscription struct {
	ID uuid.UUID

	hub        *Hub
	events     chan pty.Event
	overflowed atomic.Bool
}

// Events delivers session events in per-session order. The channel is
// closed when the subscription ends.
func (s *Subscription) Events() <-chan pty.Event { return s.events }

// Overflowed reports whether the hub dropped this subscriber because it
// fell behind.
func (s *Subscription) Overflowed() bool { return s.overflowed.Load() }

// Close ends the subscription.
func (s *Subscription) Close() { s.hub.Unsubscribe(s.ID) }

// Hub fans session events out to subscribers. It implements pty.Sink and
// never blocks a relay: a subscriber whose queue is full is disconnected
// rather than fed a stream with holes in it.
type Hub struct {
	buffer int
	log    zerolog.Logger

	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscription
}

// NewHub returns a hub with the given per-subscriber buffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &Hub{
		buffer: buffer,
		log:    logging.Component("api"),
		subs:   make(map[uuid.UUID]*Subscription),
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		ID:     uuid.New(),
		hub:    h,
		events: make(chan pty.Event, h.buffer),
	}
	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()
	h.log.Debug().Stringer("subscriber", sub.ID).Msg("subscriber attached")
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids are
// ignored.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
}

func (h *Hub) removeLocked(id uuid.UUID) {
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.events)
}

// Publish implements pty.Sink.
func (h *Hub) Publish(ev pty.Event) {
	var dropped []uuid.UUID

	h.mu.RLock()
	for id, sub := range h.subs {
		if sub.overflowed.Load() {
			continue
		}
		select {
		case sub.events <- ev:
		default:
			sub.overflowed.Store(true)
			dropped = append(dropped, id)
		}
	}
	h.mu.RUnlock()

	if len(dropped) == 0 {
		return
	}
	h.mu.Lock()
	for _, id := range dropped {
		h.log.Warn().Stringer("subscriber", id).Uint64("session", uint64(ev.ID)).Msg("subscriber fell behind, disconnecting")
		h.removeLocked(id)
	}
	h.mu.Unlock()
}

// Count returns the number of subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.subs {
		h.removeLocked(id)
	}
}
