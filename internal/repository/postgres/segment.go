package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/neoxmeet/meet-backend/internal/models"
	"github.com/neoxmeet/meet-backend/internal/repository"
)

// SegmentRepository implements repository.SegmentRepository using PostgreSQL
type SegmentRepository struct {
	db *sqlx.DB
}

// NewSegmentRepository creates a new PostgreSQL segment repository
func NewSegmentRepository(db *sqlx.DB) repository.SegmentRepository {
	return &SegmentRepository{db: db}
}

const insertSegment = `
	INSERT INTO transcript_segments (id, meeting_session_id, start_ms, end_ms, text, speaker_identity, lang, kind, created_at)
	VALUES (:id, :meeting_session_id, :start_ms, :end_ms, :text, :speaker_identity, :lang, :kind, :created_at)
`

// CreateBatch inserts segments in order inside one transaction. The seq
// column keeps insertion order for segments sharing a start offset.
func (r *SegmentRepository) CreateBatch(ctx context.Context, segments []models.TranscriptSegment) error {
	if len(segments) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin segment batch: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for i := range segments {
		prepareSegment(&segments[i], now)
		if _, err := tx.NamedExecContext(ctx, insertSegment, segments[i]); err != nil {
			return fmt.Errorf("insert segment %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit segment batch: %w", err)
	}
	return nil
}

// CreatePlaceholder relies on the partial unique index over placeholder
// segments, so a repeated insert for the same session affects no rows.
func (r *SegmentRepository) CreatePlaceholder(ctx context.Context, segment models.TranscriptSegment) (bool, error) {
	segment.Kind = models.SegmentKindPlaceholder
	prepareSegment(&segment, time.Now())

	query := insertSegment + `
	ON CONFLICT (meeting_session_id) WHERE kind = 'placeholder' DO NOTHING
	`
	result, err := r.db.NamedExecContext(ctx, query, segment)
	if err != nil {
		return false, fmt.Errorf("insert placeholder: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ListBySession retrieves the segments of a session ordered by start offset
func (r *SegmentRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.TranscriptSegment, error) {
	segments := []models.TranscriptSegment{}
	query := `
		SELECT id, meeting_session_id, start_ms, end_ms, text, speaker_identity, lang, kind, created_at
		FROM transcript_segments
		WHERE meeting_session_id = $1
		ORDER BY start_ms ASC, seq ASC
	`

	if err := r.db.SelectContext(ctx, &segments, query, sessionID); err != nil {
		return nil, err
	}
	return segments, nil
}

func prepareSegment(segment *models.TranscriptSegment, now time.Time) {
	if segment.ID == uuid.Nil {
		segment.ID = uuid.New()
	}
	if segment.CreatedAt.IsZero() {
		segment.CreatedAt = now
	}
	if segment.Kind == "" {
		segment.Kind = models.SegmentKindSpeech
	}
	if segment.EndMs < segment.StartMs {
		segment.EndMs = segment.StartMs
	}
}
