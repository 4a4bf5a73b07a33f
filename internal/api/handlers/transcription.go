package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/neoxmeet/meet-backend/internal/api/middleware"
	"github.com/neoxmeet/meet-backend/internal/services"
)

// TranscriptionHandler serves the owner commands of a room
type TranscriptionHandler struct {
	transcription *services.TranscriptionService
	sessions      *services.SessionManager
}

func NewTranscriptionHandler(transcription *services.TranscriptionService, sessions *services.SessionManager) *TranscriptionHandler {
	return &TranscriptionHandler{transcription: transcription, sessions: sessions}
}

// RegisterRoutes registers the room routes
func (h *TranscriptionHandler) RegisterRoutes(router fiber.Router) {
	rooms := router.Group("/rooms/:code")
	rooms.Post("/transcription/start", middleware.CommandRateLimit(), h.Start)
	rooms.Post("/transcription/stop", middleware.CommandRateLimit(), h.Stop)
	rooms.Get("/session", h.ActiveSession)
}

// Start handles POST /api/v1/rooms/:code/transcription/start
func (h *TranscriptionHandler) Start(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	result, err := h.transcription.Start(c.UserContext(), userID, c.Params("code"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// Stop handles POST /api/v1/rooms/:code/transcription/stop
func (h *TranscriptionHandler) Stop(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	result, err := h.transcription.Stop(c.UserContext(), userID, c.Params("code"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// ActiveSession handles GET /api/v1/rooms/:code/session
func (h *TranscriptionHandler) ActiveSession(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	session, err := h.sessions.ActiveForOwner(c.UserContext(), userID, c.Params("code"))
	if err != nil {
		return respondError(c, err)
	}
	if session == nil {
		return c.JSON(fiber.Map{"active": false})
	}
	return c.JSON(fiber.Map{
		"active":  true,
		"session": session,
	})
}
