package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// NotifyChannel is the Postgres channel signalled on enqueue and retry
const NotifyChannel = "transcription_jobs"

// PostgresQueue stores jobs in the transcription_jobs table
type PostgresQueue struct {
	db   *sqlx.DB
	opts Options
	wake chan struct{}
}

var (
	_ Queue           = (*PostgresQueue)(nil)
	_ Waker           = (*PostgresQueue)(nil)
	_ DeadLetterStore = (*PostgresQueue)(nil)
)

// NewPostgresQueue creates a queue on top of the shared database handle
func NewPostgresQueue(db *sqlx.DB, opts Options) *PostgresQueue {
	return &PostgresQueue{db: db, opts: opts.withDefaults(), wake: make(chan struct{}, 1)}
}

// Forward turns LISTEN payloads into wake-ups until the channel closes
func (q *PostgresQueue) Forward(notifications <-chan string) {
	go func() {
		for range notifications {
			notify(q.wake)
		}
	}()
}

func (q *PostgresQueue) Wake() <-chan struct{} {
	return q.wake
}

func (q *PostgresQueue) Enqueue(ctx context.Context, cmd Command) error {
	payload, err := Encode(cmd)
	if err != nil {
		return err
	}

	query := `
		WITH job AS (
			INSERT INTO transcription_jobs (id, room_code, action, payload, max_attempts)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING room_code
		)
		SELECT pg_notify($6, room_code) FROM job
	`
	if _, err := q.db.ExecContext(ctx, query, uuid.New(), cmd.RoomCode(), cmd.Action(), payload, q.opts.MaxAttempts, NotifyChannel); err != nil {
		return fmt.Errorf("enqueue %s command: %w", cmd.Action(), err)
	}
	return nil
}

type jobRow struct {
	ID          uuid.UUID `db:"id"`
	RoomCode    string    `db:"room_code"`
	Action      string    `db:"action"`
	Payload     []byte    `db:"payload"`
	Attempts    int       `db:"attempts"`
	MaxAttempts int       `db:"max_attempts"`
}

// Reserve claims the oldest ready job whose room has no earlier unfinished
// job. Running jobs whose claim expired are taken over.
func (q *PostgresQueue) Reserve(ctx context.Context) (*Job, error) {
	query := `
		UPDATE transcription_jobs
		SET status = 'running',
			attempts = attempts + 1,
			locked_until = NOW() + $1::float8 * INTERVAL '1 millisecond',
			updated_at = NOW()
		WHERE id = (
			SELECT j.id FROM transcription_jobs j
			WHERE ((j.status = 'pending' AND j.run_at <= NOW())
				OR (j.status = 'running' AND j.locked_until < NOW()))
			AND NOT EXISTS (
				SELECT 1 FROM transcription_jobs e
				WHERE e.room_code = j.room_code
				AND e.status IN ('pending', 'running')
				AND e.seq < j.seq
			)
			ORDER BY j.seq
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, room_code, action, payload, attempts, max_attempts
	`

	var row jobRow
	err := q.db.GetContext(ctx, &row, query, q.opts.Visibility.Milliseconds())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reserve job: %w", err)
	}

	return &Job{
		ID:          row.ID.String(),
		Key:         row.RoomCode,
		Action:      row.Action,
		Payload:     row.Payload,
		Attempts:    row.Attempts,
		MaxAttempts: row.MaxAttempts,
	}, nil
}

func (q *PostgresQueue) Complete(ctx context.Context, job *Job) error {
	query := `
		UPDATE transcription_jobs
		SET status = 'done', locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`
	return q.exec(ctx, "complete", query, job.ID)
}

func (q *PostgresQueue) Retry(ctx context.Context, job *Job, delay time.Duration, cause error) error {
	query := `
		WITH job AS (
			UPDATE transcription_jobs
			SET status = 'pending',
				run_at = NOW() + $2::float8 * INTERVAL '1 millisecond',
				locked_until = NULL,
				last_error = $3,
				updated_at = NOW()
			WHERE id = $1
			RETURNING room_code
		)
		SELECT pg_notify($4, room_code) FROM job
	`
	return q.exec(ctx, "retry", query, job.ID, delay.Milliseconds(), errString(cause), NotifyChannel)
}

func (q *PostgresQueue) DeadLetter(ctx context.Context, job *Job, cause error) error {
	query := `
		WITH job AS (
			UPDATE transcription_jobs
			SET status = 'dead', locked_until = NULL, last_error = $2, updated_at = NOW()
			WHERE id = $1
			RETURNING room_code
		)
		SELECT pg_notify($3, room_code) FROM job
	`
	return q.exec(ctx, "dead-letter", query, job.ID, errString(cause), NotifyChannel)
}

func (q *PostgresQueue) DeadLetters(ctx context.Context, limit int) ([]DeadJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, room_code, action, payload, attempts, COALESCE(last_error, '') AS last_error, updated_at
		FROM transcription_jobs
		WHERE status = 'dead'
		ORDER BY updated_at DESC
		LIMIT $1
	`
	jobs := []DeadJob{}
	if err := q.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return jobs, nil
}

// Requeue moves a dead job to the back of its room's queue
func (q *PostgresQueue) Requeue(ctx context.Context, id string) error {
	query := `
		UPDATE transcription_jobs
		SET status = 'pending', attempts = 0, run_at = NOW(), last_error = NULL,
			seq = nextval(pg_get_serial_sequence('transcription_jobs', 'seq')),
			updated_at = NOW()
		WHERE id = $1 AND status = 'dead'
	`
	result, err := q.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("requeue job %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("dead job %s: %w", id, ErrJobNotFound)
	}
	return nil
}

func (q *PostgresQueue) exec(ctx context.Context, op, query string, args ...interface{}) error {
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s job: %w", op, err)
	}
	return nil
}
