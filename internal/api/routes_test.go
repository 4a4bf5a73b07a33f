package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/livekit/protocol/livekit"
	"github.com/neoxmeet/meet-backend/internal/auth"
	"github.com/neoxmeet/meet-backend/internal/broadcast"
	lk "github.com/neoxmeet/meet-backend/internal/livekit"
	"github.com/neoxmeet/meet-backend/internal/logging"
	"github.com/neoxmeet/meet-backend/internal/models"
	"github.com/neoxmeet/meet-backend/internal/queue"
	"github.com/neoxmeet/meet-backend/internal/repository/memory"
	"github.com/neoxmeet/meet-backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-access-secret"

type staticMinter struct{}

func (staticMinter) MintServiceToken(room, identity string) (string, error) {
	return "svc-" + room, nil
}

// trustingVerifier accepts every delivery and returns the configured event
type trustingVerifier struct {
	event *livekit.WebhookEvent
}

func (v trustingVerifier) Verify(string, []byte) (*livekit.WebhookEvent, error) {
	return v.event, nil
}

type testServer struct {
	app   *fiber.App
	store *memory.Store
	queue *queue.MemoryQueue
	room  models.Room
	owner uuid.UUID
	jwt   *auth.JWTService
}

func newTestServer(t *testing.T, verifier lk.WebhookVerifier) *testServer {
	t.Helper()
	logger := logging.Discard()
	store := memory.New()
	owner := uuid.New()
	room := store.AddRoom(models.Room{Code: "abc-defg-hij", OwnerID: owner, Title: "Standup"})
	q := queue.NewMemoryQueue(queue.Options{})
	jwtService := auth.NewJWTService(testSecret)

	if verifier == nil {
		verifier = lk.NewWebhookVerifier("api-key", "api-secret-that-is-long-enough")
	}

	svc := services.NewServices(services.Options{
		Store:       store.Store,
		Queue:       q,
		Minter:      staticMinter{},
		Broadcaster: broadcast.NewHub(logger),
		Limits:      services.IngestionLimits{MaxFileBytes: 1024, MaxAudioSeconds: 600, WorkDir: t.TempDir()},
		LiveKitURL:  "wss://lk.example.com",
	}, logger)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	SetupRoutes(app, Dependencies{
		Services: svc,
		Tokens:   jwtService,
		Webhooks: verifier,
		Hub:      broadcast.NewHub(logger),
		Logger:   logger,
	})

	return &testServer{app: app, store: store, queue: q, room: room, owner: owner, jwt: jwtService}
}

func (s *testServer) token(t *testing.T, user uuid.UUID) string {
	t.Helper()
	token, err := s.jwt.GenerateAccessToken(user, "owner@example.com", "Owner", time.Minute)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, req *http.Request, user uuid.UUID) (int, map[string]interface{}) {
	t.Helper()
	if user != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+s.token(t, user))
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &out), string(body))
	}
	return resp.StatusCode, out
}

func jsonRequest(method, path string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	code, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil), uuid.Nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
}

func TestTranscriptionRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	startPath := "/api/v1/rooms/" + s.room.Code + "/transcription/start"
	stopPath := "/api/v1/rooms/" + s.room.Code + "/transcription/stop"

	t.Run("requires a token", func(t *testing.T) {
		code, body := s.do(t, jsonRequest(http.MethodPost, startPath, nil), uuid.Nil)
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.EqualValues(t, http.StatusUnauthorized, body["code"])
	})

	t.Run("rejects non owners", func(t *testing.T) {
		code, body := s.do(t, jsonRequest(http.MethodPost, startPath, nil), uuid.New())
		assert.Equal(t, http.StatusForbidden, code)
		assert.EqualValues(t, http.StatusForbidden, body["code"])
	})

	t.Run("unknown room", func(t *testing.T) {
		code, _ := s.do(t, jsonRequest(http.MethodPost, "/api/v1/rooms/missing/transcription/start", nil), s.owner)
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("start twice then stop", func(t *testing.T) {
		code, first := s.do(t, jsonRequest(http.MethodPost, startPath, nil), s.owner)
		require.Equal(t, http.StatusOK, code)
		code, second := s.do(t, jsonRequest(http.MethodPost, startPath, nil), s.owner)
		require.Equal(t, http.StatusOK, code)

		assert.Equal(t, "queued", first["status"])
		assert.Equal(t, first["sessionId"], second["sessionId"])
		assert.Len(t, s.store.SessionsOf(s.room.ID), 1)

		code, active := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/rooms/"+s.room.Code+"/session", nil), s.owner)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, true, active["active"])

		code, stopped := s.do(t, jsonRequest(http.MethodPost, stopPath, nil), s.owner)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "stopping", stopped["status"])
		assert.Equal(t, first["sessionId"], stopped["sessionId"])
		assert.Equal(t, 3, s.queue.Len())

		code, body := s.do(t, jsonRequest(http.MethodPost, stopPath, nil), s.owner)
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "no active meeting session", body["error"])

		code, inactive := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/rooms/"+s.room.Code+"/session", nil), s.owner)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, false, inactive["active"])
	})
}

func TestWebhookRoutes(t *testing.T) {
	t.Run("bad signature is acknowledged without changes", func(t *testing.T) {
		s := newTestServer(t, nil)
		req := jsonRequest(http.MethodPost, "/webhooks/livekit", map[string]interface{}{
			"event": "room_started",
			"room":  map[string]string{"name": s.room.Code},
		})
		req.Header.Set("Authorization", "not-a-signed-token")

		code, body := s.do(t, req, uuid.Nil)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, true, body["received"])
		assert.Empty(t, s.store.SessionsOf(s.room.ID))
	})

	t.Run("room finished closes the session", func(t *testing.T) {
		event := &livekit.WebhookEvent{Event: "room_finished", Room: &livekit.Room{Name: "abc-defg-hij"}}
		s := newTestServer(t, trustingVerifier{event: event})
		_, _, err := s.store.Sessions.OpenActive(context.Background(), s.room.ID, time.Now())
		require.NoError(t, err)

		code, body := s.do(t, jsonRequest(http.MethodPost, "/webhooks/livekit", nil), uuid.Nil)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, true, body["received"])

		code, body = s.do(t, jsonRequest(http.MethodPost, "/api/v1/rooms/"+s.room.Code+"/transcription/stop", nil), s.owner)
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "no active meeting session", body["error"])
	})

	t.Run("unknown room is acknowledged", func(t *testing.T) {
		event := &livekit.WebhookEvent{Event: "room_started", Room: &livekit.Room{Name: "elsewhere"}}
		s := newTestServer(t, trustingVerifier{event: event})

		code, _ := s.do(t, jsonRequest(http.MethodPost, "/webhooks/livekit", nil), uuid.Nil)
		assert.Equal(t, http.StatusOK, code)
		assert.Empty(t, s.store.SessionsOf(s.room.ID))
	})
}

func TestAIRoutes_Validation(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("transcribe without audio", func(t *testing.T) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		require.NoError(t, w.WriteField("meetingSessionId", uuid.NewString()))
		require.NoError(t, w.Close())
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/transcribe", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())

		code, body := s.do(t, req, s.owner)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "audio file is required", body["error"])
	})

	t.Run("recap with malformed id", func(t *testing.T) {
		code, _ := s.do(t, jsonRequest(http.MethodPost, "/api/v1/ai/recap", map[string]string{"meetingSessionId": "nope"}), s.owner)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("translate without provider", func(t *testing.T) {
		code, body := s.do(t, jsonRequest(http.MethodPost, "/api/v1/ai/translate", map[string]string{"text": "hola", "targetLang": "en"}), s.owner)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Equal(t, "OPENAI_API_KEY is not configured", body["error"])
	})
}

func TestSessionRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()
	session, _, err := s.store.Sessions.OpenActive(ctx, s.room.ID, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.store.Segments.CreateBatch(ctx, []models.TranscriptSegment{
		{MeetingSessionID: session.ID, StartMs: 5000, EndMs: 6000, Text: "second"},
		{MeetingSessionID: session.ID, StartMs: 0, EndMs: 1000, Text: "first"},
	}))

	code, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+session.ID.String()+"/segments", nil), s.owner)
	require.Equal(t, http.StatusOK, code)
	segments, ok := body["segments"].([]interface{})
	require.True(t, ok)
	require.Len(t, segments, 2)
	assert.Equal(t, "first", segments[0].(map[string]interface{})["text"])

	code, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+session.ID.String()+"/recap", nil), s.owner)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+uuid.NewString()+"/segments", nil), s.owner)
	assert.Equal(t, http.StatusNotFound, code)

	t.Run("other users are refused", func(t *testing.T) {
		stranger := uuid.New()
		for _, path := range []string{"/segments", "/recap"} {
			code, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+session.ID.String()+path, nil), stranger)
			assert.Equal(t, http.StatusForbidden, code, path)
			assert.NotContains(t, body, "segments")
		}
	})

	t.Run("requires a token", func(t *testing.T) {
		code, _ := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+session.ID.String()+"/segments", nil), uuid.Nil)
		assert.Equal(t, http.StatusUnauthorized, code)
	})
}

func TestCaptionRoute_OwnerOnly(t *testing.T) {
	s := newTestServer(t, nil)
	upgrade := func(code string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/ws/rooms/"+code+"/captions", nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		req.Header.Set("Sec-WebSocket-Version", "13")
		req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
		return req
	}

	code, _ := s.do(t, upgrade(s.room.Code), uuid.New())
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, upgrade("nope"), s.owner)
	assert.Equal(t, http.StatusNotFound, code)
}
