package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/neoxmeet/meet-backend/internal/livekit"
	"github.com/neoxmeet/meet-backend/internal/metrics"
	"github.com/neoxmeet/meet-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// WebhookHandler receives LiveKit room events. Every delivery is
// acknowledged, including ones that fail verification or cannot be mapped,
// so the provider does not keep retrying them.
type WebhookHandler struct {
	verifier livekit.WebhookVerifier
	sessions *services.SessionManager
	logger   logrus.FieldLogger
}

func NewWebhookHandler(verifier livekit.WebhookVerifier, sessions *services.SessionManager, logger logrus.FieldLogger) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, sessions: sessions, logger: logger}
}

// LiveKit handles POST /webhooks/livekit
func (h *WebhookHandler) LiveKit(c *fiber.Ctx) error {
	event, err := h.verifier.Verify(c.Get(fiber.HeaderAuthorization), c.Body())
	if err != nil {
		metrics.RecordWebhookEvent("unknown", "rejected")
		h.logger.WithError(err).Warn("rejected livekit webhook")
		return received(c)
	}

	name := event.GetEvent()
	room := event.GetRoom().GetName()
	if err := h.sessions.Reconcile(c.UserContext(), room, name); err != nil {
		metrics.RecordWebhookEvent(name, "error")
		h.logger.WithError(err).WithFields(logrus.Fields{"room": room, "event": name}).Error("failed to apply livekit webhook")
		return received(c)
	}

	metrics.RecordWebhookEvent(name, "applied")
	return received(c)
}

func received(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"received": true})
}
