package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/neoxmeet/meet-backend/internal/models"
)

// RoomRepository reads rooms. Room CRUD lives outside this service.
type RoomRepository interface {
	GetByCode(ctx context.Context, code string) (*models.Room, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error)
}

// SessionRepository persists meeting sessions. OpenActive and CloseActive are
// atomic read-modify-write operations: implementations must never let two
// sessions of the same room be active at once.
type SessionRepository interface {
	// OpenActive returns the active session of the room, creating one that
	// started at now when none exists. created reports whether a row was inserted.
	OpenActive(ctx context.Context, roomID uuid.UUID, now time.Time) (session *models.MeetingSession, created bool, err error)
	// CloseActive ends the most recently started active session of the room.
	// It returns nil, nil when the room has no active session.
	CloseActive(ctx context.Context, roomID uuid.UUID, now time.Time) (*models.MeetingSession, error)
	// GetActive returns the active session of the room, or nil.
	GetActive(ctx context.Context, roomID uuid.UUID) (*models.MeetingSession, error)
	// Get returns the session by id, or nil when it does not exist.
	Get(ctx context.Context, id uuid.UUID) (*models.MeetingSession, error)
}

// SegmentRepository persists transcript segments.
type SegmentRepository interface {
	// CreateBatch inserts the segments in the given order.
	CreateBatch(ctx context.Context, segments []models.TranscriptSegment) error
	// CreatePlaceholder inserts the placeholder segment of a session unless one
	// already exists. inserted is false when the write was skipped.
	CreatePlaceholder(ctx context.Context, segment models.TranscriptSegment) (inserted bool, err error)
	// ListBySession returns the session segments ordered by start offset.
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.TranscriptSegment, error)
}

// ArtifactRepository persists recap artifacts, one per session.
type ArtifactRepository interface {
	Upsert(ctx context.Context, artifact models.TranscriptArtifact) (*models.TranscriptArtifact, error)
	GetBySession(ctx context.Context, sessionID uuid.UUID) (*models.TranscriptArtifact, error)
}

// Store groups the repositories the services depend on.
type Store struct {
	Rooms     RoomRepository
	Sessions  SessionRepository
	Segments  SegmentRepository
	Artifacts ArtifactRepository
}

// ErrRoomNotFound is returned by session writes that reference an unknown room.
var ErrRoomNotFound = errors.New("room not found")
