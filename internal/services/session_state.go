package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/neoxmeet/meet-backend/internal/metrics"
	"github.com/neoxmeet/meet-backend/internal/models"
	"github.com/neoxmeet/meet-backend/internal/repository"
	"github.com/sirupsen/logrus"
)

// Session triggers
const (
	TriggerCommand = "api"
	TriggerWebhook = "webhook"
)

// Webhook events that move session state
const (
	EventRoomStarted       = "room_started"
	EventRoomFinished      = "room_finished"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
)

// SessionManager is the only writer of meeting sessions. Both the command
// API and the webhook receiver go through it.
type SessionManager struct {
	rooms    repository.RoomRepository
	sessions repository.SessionRepository
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewSessionManager creates a session manager
func NewSessionManager(rooms repository.RoomRepository, sessions repository.SessionRepository, logger logrus.FieldLogger) *SessionManager {
	return &SessionManager{
		rooms:    rooms,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// OpenSession returns the active session of the room, creating it when the
// room has none. Calling it again returns the same session.
func (m *SessionManager) OpenSession(ctx context.Context, roomID uuid.UUID) (*models.MeetingSession, error) {
	session, _, err := m.open(ctx, roomID, TriggerCommand)
	return session, err
}

func (m *SessionManager) open(ctx context.Context, roomID uuid.UUID, trigger string) (*models.MeetingSession, bool, error) {
	session, created, err := m.sessions.OpenActive(ctx, roomID, m.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, false, notFoundError("open session", "room not found")
		}
		return nil, false, internalError("open session", err)
	}

	log := m.logger.WithFields(logrus.Fields{"room_id": roomID, "session": session.ID, "trigger": trigger})
	if created {
		metrics.RecordSessionTransition("open", trigger)
		log.Info("meeting session opened")
	} else {
		metrics.RecordSessionTransition("reuse", trigger)
		log.Debug("meeting session already active")
	}
	return session, created, nil
}

// CloseSession ends the most recent active session of the room. It returns
// ErrNoActiveSession, without writing anything, when there is none.
func (m *SessionManager) CloseSession(ctx context.Context, roomID uuid.UUID) (*models.MeetingSession, error) {
	return m.close(ctx, roomID, TriggerCommand)
}

func (m *SessionManager) close(ctx context.Context, roomID uuid.UUID, trigger string) (*models.MeetingSession, error) {
	session, err := m.sessions.CloseActive(ctx, roomID, m.now().UTC())
	if err != nil {
		return nil, internalError("close session", err)
	}
	if session == nil {
		return nil, ErrNoActiveSession
	}

	metrics.RecordSessionTransition("close", trigger)
	m.logger.WithFields(logrus.Fields{"room_id": roomID, "session": session.ID, "trigger": trigger}).Info("meeting session closed")
	return session, nil
}

// ownedRoom resolves a room code and checks the caller owns it
func (m *SessionManager) ownedRoom(ctx context.Context, op string, userID uuid.UUID, roomCode string) (*models.Room, error) {
	room, err := m.rooms.GetByCode(ctx, roomCode)
	if err != nil {
		return nil, internalError(op, err)
	}
	if room == nil {
		return nil, notFoundError(op, "room not found")
	}
	if room.OwnerID != userID {
		return nil, forbiddenError(op, "only the room owner can do this")
	}
	return room, nil
}

// OpenForOwner opens the session of a room on behalf of its owner
func (m *SessionManager) OpenForOwner(ctx context.Context, userID uuid.UUID, roomCode string) (*models.Room, *models.MeetingSession, error) {
	room, err := m.ownedRoom(ctx, "open session", userID, roomCode)
	if err != nil {
		return nil, nil, err
	}
	session, _, err := m.open(ctx, room.ID, TriggerCommand)
	if err != nil {
		return nil, nil, err
	}
	return room, session, nil
}

// CloseForOwner closes the session of a room on behalf of its owner
func (m *SessionManager) CloseForOwner(ctx context.Context, userID uuid.UUID, roomCode string) (*models.Room, *models.MeetingSession, error) {
	room, err := m.ownedRoom(ctx, "close session", userID, roomCode)
	if err != nil {
		return nil, nil, err
	}
	session, err := m.close(ctx, room.ID, TriggerCommand)
	if err != nil {
		if errors.Is(err, ErrNoActiveSession) {
			return nil, nil, &Error{Kind: KindNotFound, Op: "close session", Message: ErrNoActiveSession.Error(), Err: err}
		}
		return nil, nil, err
	}
	return room, session, nil
}

// ActiveForOwner returns the active session of an owned room, or nil
func (m *SessionManager) ActiveForOwner(ctx context.Context, userID uuid.UUID, roomCode string) (*models.MeetingSession, error) {
	room, err := m.ownedRoom(ctx, "get session", userID, roomCode)
	if err != nil {
		return nil, err
	}
	session, err := m.sessions.GetActive(ctx, room.ID)
	if err != nil {
		return nil, internalError("get session", err)
	}
	return session, nil
}

// AuthorizeRoom checks the caller owns the room
func (m *SessionManager) AuthorizeRoom(ctx context.Context, userID uuid.UUID, roomCode string) (*models.Room, error) {
	return m.ownedRoom(ctx, "watch room", userID, roomCode)
}

// AuthorizeSession checks the caller owns the room the session belongs to
func (m *SessionManager) AuthorizeSession(ctx context.Context, userID, sessionID uuid.UUID) (*models.MeetingSession, error) {
	const op = "read session"

	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, internalError(op, err)
	}
	if session == nil {
		return nil, notFoundError(op, "meeting session not found")
	}

	room, err := m.rooms.GetByID(ctx, session.RoomID)
	if err != nil {
		return nil, internalError(op, err)
	}
	if room == nil || room.OwnerID != userID {
		return nil, forbiddenError(op, "only the room owner can do this")
	}
	return session, nil
}

// Reconcile applies a verified provider webhook. Events it cannot map are
// ignored: the provider must not be made to retry them.
func (m *SessionManager) Reconcile(ctx context.Context, roomCode, event string) error {
	log := m.logger.WithFields(logrus.Fields{"room": roomCode, "event": event})

	var opening bool
	switch event {
	case EventRoomStarted, EventParticipantJoined:
		opening = true
	case EventRoomFinished, EventParticipantLeft:
	default:
		log.Debug("ignoring webhook event")
		return nil
	}

	if roomCode == "" {
		log.Debug("webhook event without room")
		return nil
	}
	room, err := m.rooms.GetByCode(ctx, roomCode)
	if err != nil {
		return internalError("reconcile session", err)
	}
	if room == nil {
		log.Debug("webhook event for unknown room")
		return nil
	}

	if opening {
		_, _, err = m.open(ctx, room.ID, TriggerWebhook)
		return err
	}

	_, err = m.close(ctx, room.ID, TriggerWebhook)
	if errors.Is(err, ErrNoActiveSession) {
		log.Debug("no active session to close")
		return nil
	}
	return err
}

// Get returns a session by id
func (m *SessionManager) Get(ctx context.Context, id uuid.UUID) (*models.MeetingSession, error) {
	session, err := m.sessions.Get(ctx, id)
	if err != nil {
		return nil, internalError("get session", err)
	}
	if session == nil {
		return nil, notFoundError("get session", "meeting session not found")
	}
	return session, nil
}

// ParseSessionID validates a client-supplied session id
func ParseSessionID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, validationError("parse session id", "meetingSessionId must be a valid uuid")
	}
	return id, nil
}
