package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/neoxmeet/meet-backend/internal/api/handlers"
	"github.com/neoxmeet/meet-backend/internal/api/middleware"
	"github.com/neoxmeet/meet-backend/internal/broadcast"
	"github.com/neoxmeet/meet-backend/internal/livekit"
	"github.com/neoxmeet/meet-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// Dependencies are the collaborators the routes need
type Dependencies struct {
	Services *services.Services
	Tokens   middleware.TokenValidator
	Webhooks livekit.WebhookVerifier
	Hub      *broadcast.Hub
	Logger   logrus.FieldLogger
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, deps Dependencies) {
	svc := deps.Services

	// ========================================
	// Public routes (no authentication needed)
	// ========================================

	api := app.Group("/api/v1")
	api.Get("/health", handlers.Health)

	webhooks := handlers.NewWebhookHandler(deps.Webhooks, svc.Sessions, deps.Logger.WithField("component", "webhook"))
	app.Post("/webhooks/livekit", webhooks.LiveKit)

	// ========================================
	// Protected routes (authentication required)
	// ========================================

	protected := api.Group("", middleware.AuthRequired(deps.Tokens))

	handlers.NewTranscriptionHandler(svc.Transcription, svc.Sessions).RegisterRoutes(protected)
	handlers.NewAIHandler(svc).RegisterRoutes(protected)

	protected.Get("/sessions/:id/segments", handlers.GetSessionSegments(svc))
	protected.Get("/sessions/:id/recap", handlers.GetSessionRecap(svc))

	// ========================================
	// WebSocket routes (with auth)
	// ========================================

	if deps.Hub != nil {
		captions := handlers.NewCaptionStream(deps.Hub, svc.Sessions, deps.Logger.WithField("component", "captions"))
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		}, middleware.WebSocketAuth(deps.Tokens))
		app.Get("/ws/rooms/:code/captions", captions.Authorize, websocket.New(captions.Serve))
	}
}
