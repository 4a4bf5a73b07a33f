package broadcast

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Multi sends every event to a primary target and any number of secondary
// targets. Only the primary target's error is returned.
type Multi struct {
	primary     Broadcaster
	secondaries []Broadcaster
	logger      logrus.FieldLogger
}

// NewMulti creates a Multi broadcaster
func NewMulti(logger logrus.FieldLogger, primary Broadcaster, secondaries ...Broadcaster) *Multi {
	return &Multi{primary: primary, secondaries: secondaries, logger: logger}
}

func (m *Multi) Broadcast(ctx context.Context, roomCode string, event Event) error {
	err := m.primary.Broadcast(ctx, roomCode, event)

	for _, target := range m.secondaries {
		if serr := target.Broadcast(ctx, roomCode, event); serr != nil {
			m.logger.WithError(serr).WithFields(logrus.Fields{
				"room":  roomCode,
				"event": event.Type,
			}).Warn("secondary broadcast failed")
		}
	}

	return err
}
