package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/neoxmeet/meet-backend/internal/api/middleware"
	"github.com/neoxmeet/meet-backend/internal/services"
)

// AIHandler serves the provider-backed endpoints
type AIHandler struct {
	svc *services.Services
}

func NewAIHandler(svc *services.Services) *AIHandler {
	return &AIHandler{svc: svc}
}

// RegisterRoutes registers the /ai routes
func (h *AIHandler) RegisterRoutes(router fiber.Router) {
	ai := router.Group("/ai", middleware.AIRateLimit())
	ai.Post("/transcribe", h.Transcribe)
	ai.Post("/recap", h.Recap)
	ai.Post("/translate", h.Translate)
	ai.Post("/tts", h.Speak)
}

// Transcribe handles POST /api/v1/ai/transcribe (multipart field "audio")
func (h *AIHandler) Transcribe(c *fiber.Ctx) error {
	upload := services.Upload{SessionID: c.FormValue("meetingSessionId")}

	file, err := c.FormFile("audio")
	if err == nil && file != nil {
		f, err := file.Open()
		if err != nil {
			return badRequest(c, "could not read audio file")
		}
		defer f.Close()
		upload.Filename = file.Filename
		upload.Size = file.Size
		upload.Body = f
	}

	result, err := h.svc.Ingestion.Transcribe(c.UserContext(), upload)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

type recapRequest struct {
	MeetingSessionID string `json:"meetingSessionId"`
}

// Recap handles POST /api/v1/ai/recap
func (h *AIHandler) Recap(c *fiber.Ctx) error {
	var req recapRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	sessionID, err := services.ParseSessionID(req.MeetingSessionID)
	if err != nil {
		return respondError(c, err)
	}

	artifact, err := h.svc.Recap.Generate(c.UserContext(), sessionID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(artifact)
}

type translateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"sourceLang"`
	TargetLang string `json:"targetLang"`
}

// Translate handles POST /api/v1/ai/translate
func (h *AIHandler) Translate(c *fiber.Ctx) error {
	var req translateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	translated, err := h.svc.Language.Translate(c.UserContext(), req.Text, req.SourceLang, req.TargetLang)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"translatedText": translated})
}

type speakRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId"`
}

// Speak handles POST /api/v1/ai/tts
func (h *AIHandler) Speak(c *fiber.Ctx) error {
	var req speakRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	audio, err := h.svc.Language.Speak(c.UserContext(), req.Text, req.VoiceID)
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, "audio/mpeg")
	return c.Send(audio)
}
