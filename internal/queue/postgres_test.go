package queue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neoxmeet/meet-backend/internal/config"
	"github.com/neoxmeet/meet-backend/internal/database"
)

// Runs against a disposable database when POSTGRES_TEST_URL is set. Reserve
// looks at every room, so the jobs table is emptied first.
func newPostgresTestQueue(t *testing.T, opts Options) (*PostgresQueue, *sqlx.DB) {
	t.Helper()
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}

	cfg := config.DatabaseConfig{URL: url}
	require.NoError(t, database.RunMigrations(cfg))
	conn, err := database.NewConnection(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Exec(`TRUNCATE transcription_jobs`)
	require.NoError(t, err)
	return NewPostgresQueue(conn.DB, opts), conn.DB
}

func TestPostgresQueue_HeadOfRoomBlocksLaterJobs(t *testing.T) {
	q, _ := newPostgresTestQueue(t, Options{MaxAttempts: 3, Visibility: time.Minute})
	ctx := context.Background()
	session := uuid.New()

	require.NoError(t, q.Enqueue(ctx, start("room-a", session)))
	require.NoError(t, q.Enqueue(ctx, stop("room-a", session)))
	require.NoError(t, q.Enqueue(ctx, start("room-b", uuid.New())))

	first, err := q.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "room-a", first.Key)
	assert.Equal(t, ActionStart, first.Action)
	assert.Equal(t, 1, first.Attempts)
	assert.Equal(t, 3, first.MaxAttempts)

	other, err := q.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, other)
	assert.Equal(t, "room-b", other.Key, "another room is not held up")

	blocked, err := q.Reserve(ctx)
	require.NoError(t, err)
	assert.Nil(t, blocked, "the stop waits for the start of its room")

	require.NoError(t, q.Complete(ctx, first))
	next, err := q.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, ActionStop, next.Action)

	cmd, err := Decode(next.Payload)
	require.NoError(t, err)
	assert.Equal(t, session, cmd.SessionID())
}

func TestPostgresQueue_RetryKeepsHeadAndDeadLetters(t *testing.T) {
	q, _ := newPostgresTestQueue(t, Options{MaxAttempts: 2, Visibility: time.Minute})
	ctx := context.Background()
	session := uuid.New()

	require.NoError(t, q.Enqueue(ctx, start("room-a", session)))
	require.NoError(t, q.Enqueue(ctx, stop("room-a", session)))

	first, err := q.Reserve(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Retry(ctx, first, time.Hour, errors.New("flaky")))

	delayed, err := q.Reserve(ctx)
	require.NoError(t, err)
	assert.Nil(t, delayed, "a delayed retry still holds its room")

	require.NoError(t, q.DeadLetter(ctx, first, errors.New("gave up")))
	next, err := q.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, ActionStop, next.Action)
	require.NoError(t, q.Complete(ctx, next))

	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, first.ID, dead[0].ID)
	assert.Equal(t, "gave up", dead[0].LastError)

	require.NoError(t, q.Requeue(ctx, first.ID))
	again, err := q.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, again.Attempts)

	assert.ErrorIs(t, q.Requeue(ctx, uuid.NewString()), ErrJobNotFound)
}

func TestPostgresQueue_ExpiredClaimIsTakenOver(t *testing.T) {
	q, db := newPostgresTestQueue(t, Options{MaxAttempts: 3, Visibility: time.Minute})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, start("room-a", uuid.New())))
	first, err := q.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	_, err = db.Exec(`UPDATE transcription_jobs SET locked_until = NOW() - INTERVAL '1 second' WHERE id = $1`, first.ID)
	require.NoError(t, err)

	again, err := q.Reserve(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 2, again.Attempts)
}
