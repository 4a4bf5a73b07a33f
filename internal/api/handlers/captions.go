package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/neoxmeet/meet-backend/internal/api/middleware"
	"github.com/neoxmeet/meet-backend/internal/broadcast"
	"github.com/neoxmeet/meet-backend/internal/models"
	"github.com/sirupsen/logrus"
)

const captionPingInterval = 30 * time.Second

// RoomAuthorizer decides who may watch a room
type RoomAuthorizer interface {
	AuthorizeRoom(ctx context.Context, userID uuid.UUID, roomCode string) (*models.Room, error)
}

// CaptionStream relays room broadcasts to websocket viewers
type CaptionStream struct {
	hub    *broadcast.Hub
	rooms  RoomAuthorizer
	logger logrus.FieldLogger
}

func NewCaptionStream(hub *broadcast.Hub, rooms RoomAuthorizer, logger logrus.FieldLogger) *CaptionStream {
	return &CaptionStream{hub: hub, rooms: rooms, logger: logger}
}

// Authorize runs before the upgrade so a refused viewer gets a plain HTTP error
func (s *CaptionStream) Authorize(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}
	if _, err := s.rooms.AuthorizeRoom(c.UserContext(), userID, c.Params("code")); err != nil {
		return respondError(c, err)
	}
	return c.Next()
}

// Serve handles GET /ws/rooms/:code/captions
func (s *CaptionStream) Serve(c *websocket.Conn) {
	defer c.Close()

	room := c.Params("code")
	sub := s.hub.Subscribe(room)
	defer sub.Close()

	log := s.logger.WithField("room", room)
	log.Debug("caption viewer connected")

	// The reader only notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(captionPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			log.Debug("caption viewer disconnected")
			return
		case msg, ok := <-sub.C:
			if !ok {
				log.Debug("caption viewer dropped")
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
