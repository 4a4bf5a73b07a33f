package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Transport carries relayed events to the other processes of the deployment
type Transport interface {
	Publish(ctx context.Context, payload []byte) error
}

type relayEnvelope struct {
	Origin string `json:"origin"`
	Room   string `json:"room"`
	Event  Event  `json:"event"`
}

// Relay delivers events to the local hub and publishes them so hubs in other
// processes deliver them too. A worker process has no websocket viewers; its
// events reach them through the server's Relay.
type Relay struct {
	origin    string
	hub       *Hub
	transport Transport
	logger    logrus.FieldLogger
}

func NewRelay(hub *Hub, transport Transport, logger logrus.FieldLogger) *Relay {
	return &Relay{origin: uuid.NewString(), hub: hub, transport: transport, logger: logger}
}

// Broadcast returns the publish error; local delivery never fails
func (r *Relay) Broadcast(ctx context.Context, roomCode string, event Event) error {
	if err := r.hub.Broadcast(ctx, roomCode, event); err != nil {
		return err
	}

	payload, err := json.Marshal(relayEnvelope{Origin: r.origin, Room: roomCode, Event: event})
	if err != nil {
		return err
	}
	err = r.transport.Publish(ctx, payload)
	if errors.Is(err, ErrPayloadTooLarge) {
		r.logger.WithField("room", roomCode).WithField("event", event.Type).Debug("event too large to relay, delivered locally only")
		return nil
	}
	if err != nil {
		return fmt.Errorf("relay %s: %w", event.Type, err)
	}
	return nil
}

// Receive feeds the local hub with events published by other processes until
// payloads is closed or ctx ends. Events this Relay published are skipped.
func (r *Relay) Receive(ctx context.Context, payloads <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-payloads:
			if !ok {
				return
			}
			r.deliver(ctx, payload)
		}
	}
}

func (r *Relay) deliver(ctx context.Context, payload string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.WithError(err).Warn("discarding malformed relayed event")
		return
	}
	if env.Origin == r.origin || env.Room == "" {
		return
	}
	if err := r.hub.Broadcast(ctx, env.Room, env.Event); err != nil {
		r.logger.WithError(err).WithField("room", env.Room).Warn("relayed event not delivered")
	}
}
