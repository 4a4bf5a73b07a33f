package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/neoxmeet/meet-backend/internal/api/middleware"
	"github.com/neoxmeet/meet-backend/internal/services"
)

// ownedSession parses :id and checks the caller owns the session's room
func ownedSession(c *fiber.Ctx, svc *services.Services) (uuid.UUID, error) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return uuid.Nil, fiber.ErrUnauthorized
	}

	sessionID, err := services.ParseSessionID(c.Params("id"))
	if err != nil {
		return uuid.Nil, err
	}

	if _, err := svc.Sessions.AuthorizeSession(c.UserContext(), userID, sessionID); err != nil {
		return uuid.Nil, err
	}
	return sessionID, nil
}

// GetSessionSegments handles GET /api/v1/sessions/:id/segments
func GetSessionSegments(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID, err := ownedSession(c, svc)
		if err != nil {
			return respondError(c, err)
		}

		segments, err := svc.Recap.Segments(c.UserContext(), sessionID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"segments": segments})
	}
}

// GetSessionRecap handles GET /api/v1/sessions/:id/recap
func GetSessionRecap(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID, err := ownedSession(c, svc)
		if err != nil {
			return respondError(c, err)
		}

		artifact, err := svc.Recap.Get(c.UserContext(), sessionID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(artifact)
	}
}
