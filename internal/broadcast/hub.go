package broadcast

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 32

// Subscription receives encoded events for one room. C is closed when the
// subscription ends, either by Close or because the reader fell behind.
type Subscription struct {
	C    <-chan []byte
	ch   chan []byte
	room string
	hub  *Hub
}

// Close unsubscribes
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub fans events out to in-process subscribers, such as websocket viewers
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]map[*Subscription]struct{}
	logger logrus.FieldLogger
}

// NewHub creates an empty hub
func NewHub(logger logrus.FieldLogger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscribe registers a subscriber for a room
func (h *Hub) Subscribe(roomCode string) *Subscription {
	ch := make(chan []byte, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, room: roomCode, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[roomCode] == nil {
		h.rooms[roomCode] = make(map[*Subscription]struct{})
	}
	h.rooms[roomCode][sub] = struct{}{}
	return sub
}

// Subscribers returns the number of subscribers of a room
func (h *Hub) Subscribers(roomCode string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomCode])
}

// Broadcast never blocks: a subscriber whose buffer is full is dropped.
func (h *Hub) Broadcast(_ context.Context, roomCode string, event Event) error {
	payload, err := event.Encode()
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.rooms[roomCode] {
		select {
		case sub.ch <- payload:
		default:
			h.logger.WithField("room", roomCode).Warn("dropping slow caption subscriber")
			h.removeLocked(sub)
		}
	}
	return nil
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscription) {
	subs, ok := h.rooms[sub.room]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.rooms, sub.room)
	}
}
