package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/neoxmeet/meet-backend/internal/models"
	"github.com/neoxmeet/meet-backend/internal/repository"
)

// RoomRepository reads rooms from PostgreSQL
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository creates a new PostgreSQL room repository
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

var _ repository.RoomRepository = (*RoomRepository)(nil)

// ErrRoomCodeTaken is returned by Create when the code is already used
var ErrRoomCodeTaken = errors.New("room code already exists")

// GetByCode retrieves a room by its public code
func (r *RoomRepository) GetByCode(ctx context.Context, code string) (*models.Room, error) {
	return r.get(ctx, `SELECT id, code, owner_id, title, created_at FROM rooms WHERE code = $1`, code)
}

// GetByID retrieves a room by ID
func (r *RoomRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return r.get(ctx, `SELECT id, code, owner_id, title, created_at FROM rooms WHERE id = $1`, id)
}

func (r *RoomRepository) get(ctx context.Context, query string, arg interface{}) (*models.Room, error) {
	var room models.Room
	if err := r.db.GetContext(ctx, &room, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

// Create inserts a room. Only used by the seed tooling; room management is
// owned by another service.
func (r *RoomRepository) Create(ctx context.Context, room *models.Room) error {
	if room.ID == uuid.Nil {
		room.ID = uuid.New()
	}
	room.CreatedAt = time.Now()

	query := `
		INSERT INTO rooms (id, code, owner_id, title, created_at)
		VALUES (:id, :code, :owner_id, :title, :created_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, room); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrRoomCodeTaken
		}
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}
