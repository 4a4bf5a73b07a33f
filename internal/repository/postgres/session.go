package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/neoxmeet/meet-backend/internal/models"
	"github.com/neoxmeet/meet-backend/internal/repository"
)

const sessionColumns = `id, room_id, started_at, ended_at`

// SessionRepository implements repository.SessionRepository using PostgreSQL
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(db *sqlx.DB) repository.SessionRepository {
	return &SessionRepository{db: db}
}

// OpenActive finds or creates the active session of a room. The room row is
// locked for the duration of the transaction so concurrent openers for the
// same room serialize; the partial unique index on active sessions backs it up.
func (r *SessionRepository) OpenActive(ctx context.Context, roomID uuid.UUID, now time.Time) (*models.MeetingSession, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin open session: %w", err)
	}
	defer tx.Rollback()

	var locked uuid.UUID
	if err := tx.GetContext(ctx, &locked, `SELECT id FROM rooms WHERE id = $1 FOR UPDATE`, roomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, repository.ErrRoomNotFound
		}
		return nil, false, fmt.Errorf("lock room: %w", err)
	}

	var session models.MeetingSession
	query := `
		SELECT ` + sessionColumns + `
		FROM meeting_sessions
		WHERE room_id = $1 AND ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`
	err = tx.GetContext(ctx, &session, query, roomID)
	if err == nil {
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit open session: %w", err)
		}
		return &session, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("find active session: %w", err)
	}

	session = models.MeetingSession{
		ID:        uuid.New(),
		RoomID:    roomID,
		StartedAt: now,
	}
	insert := `
		INSERT INTO meeting_sessions (id, room_id, started_at)
		VALUES (:id, :room_id, :started_at)
	`
	if _, err := tx.NamedExecContext(ctx, insert, session); err != nil {
		return nil, false, fmt.Errorf("insert session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit open session: %w", err)
	}

	return &session, true, nil
}

// CloseActive ends the latest active session of a room in a single statement.
func (r *SessionRepository) CloseActive(ctx context.Context, roomID uuid.UUID, now time.Time) (*models.MeetingSession, error) {
	var session models.MeetingSession
	query := `
		UPDATE meeting_sessions SET ended_at = $2
		WHERE id = (
			SELECT id FROM meeting_sessions
			WHERE room_id = $1 AND ended_at IS NULL
			ORDER BY started_at DESC
			LIMIT 1
			FOR UPDATE
		)
		RETURNING ` + sessionColumns

	err := r.db.GetContext(ctx, &session, query, roomID, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("close session: %w", err)
	}

	return &session, nil
}

// GetActive retrieves the active session of a room
func (r *SessionRepository) GetActive(ctx context.Context, roomID uuid.UUID) (*models.MeetingSession, error) {
	var session models.MeetingSession
	query := `
		SELECT ` + sessionColumns + `
		FROM meeting_sessions
		WHERE room_id = $1 AND ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1
	`

	err := r.db.GetContext(ctx, &session, query, roomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &session, nil
}

// Get retrieves a session by ID
func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*models.MeetingSession, error) {
	var session models.MeetingSession
	query := `SELECT ` + sessionColumns + ` FROM meeting_sessions WHERE id = $1`

	err := r.db.GetContext(ctx, &session, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &session, nil
}
