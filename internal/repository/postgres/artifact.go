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

// ArtifactRepository implements repository.ArtifactRepository using PostgreSQL
type ArtifactRepository struct {
	db *sqlx.DB
}

// NewArtifactRepository creates a new PostgreSQL artifact repository
func NewArtifactRepository(db *sqlx.DB) repository.ArtifactRepository {
	return &ArtifactRepository{db: db}
}

const artifactColumns = `id, meeting_session_id, cleaned_transcript, summary, decisions, action_items, created_at, updated_at`

// Upsert inserts the artifact or replaces every field of the existing one
func (r *ArtifactRepository) Upsert(ctx context.Context, artifact models.TranscriptArtifact) (*models.TranscriptArtifact, error) {
	now := time.Now()
	if artifact.ID == uuid.Nil {
		artifact.ID = uuid.New()
	}
	artifact.CreatedAt = now
	artifact.UpdatedAt = now
	if artifact.Decisions == nil {
		artifact.Decisions = pq.StringArray{}
	}
	if artifact.ActionItems == nil {
		artifact.ActionItems = pq.StringArray{}
	}

	named := `
		INSERT INTO transcript_artifacts (` + artifactColumns + `)
		VALUES (:id, :meeting_session_id, :cleaned_transcript, :summary, :decisions, :action_items, :created_at, :updated_at)
		ON CONFLICT (meeting_session_id) DO UPDATE SET
			cleaned_transcript = EXCLUDED.cleaned_transcript,
			summary = EXCLUDED.summary,
			decisions = EXCLUDED.decisions,
			action_items = EXCLUDED.action_items,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + artifactColumns

	query, args, err := r.db.BindNamed(named, artifact)
	if err != nil {
		return nil, fmt.Errorf("bind artifact: %w", err)
	}

	var stored models.TranscriptArtifact
	if err := r.db.QueryRowxContext(ctx, query, args...).StructScan(&stored); err != nil {
		return nil, fmt.Errorf("upsert artifact: %w", err)
	}
	return &stored, nil
}

// GetBySession retrieves the artifact of a session
func (r *ArtifactRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*models.TranscriptArtifact, error) {
	var artifact models.TranscriptArtifact
	query := `SELECT ` + artifactColumns + ` FROM transcript_artifacts WHERE meeting_session_id = $1`

	err := r.db.GetContext(ctx, &artifact, query, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &artifact, nil
}
