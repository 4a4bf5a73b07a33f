package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neoxmeet/meet-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRepo_OpenActiveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := New()
	room := store.AddRoom(models.Room{Code: "abc-defg-hij", OwnerID: uuid.New()})

	first, created, err := store.Sessions.OpenActive(ctx, room.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := store.Sessions.OpenActive(ctx, room.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestSessionRepo_ConcurrentOpenCreatesOneSession(t *testing.T) {
	ctx := context.Background()
	store := New()
	room := store.AddRoom(models.Room{Code: "race", OwnerID: uuid.New()})

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session, _, err := store.Sessions.OpenActive(ctx, room.ID, time.Now())
			if err == nil {
				ids[i] = session.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, store.SessionsOf(room.ID), 1)
}

func TestSessionRepo_OpenUnknownRoom(t *testing.T) {
	_, _, err := New().Sessions.OpenActive(context.Background(), uuid.New(), time.Now())
	assert.Error(t, err)
}

func TestSessionRepo_CloseActive(t *testing.T) {
	ctx := context.Background()
	store := New()
	room := store.AddRoom(models.Room{Code: "close-me", OwnerID: uuid.New()})

	closed, err := store.Sessions.CloseActive(ctx, room.ID, time.Now())
	require.NoError(t, err)
	assert.Nil(t, closed, "no active session means no write")

	opened, _, err := store.Sessions.OpenActive(ctx, room.ID, time.Now())
	require.NoError(t, err)

	closed, err = store.Sessions.CloseActive(ctx, room.ID, time.Now())
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.Equal(t, opened.ID, closed.ID)
	assert.NotNil(t, closed.EndedAt)

	active, err := store.Sessions.GetActive(ctx, room.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	reopened, created, err := store.Sessions.OpenActive(ctx, room.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, opened.ID, reopened.ID)
}

func TestSegmentRepo_ListOrdersByStart(t *testing.T) {
	ctx := context.Background()
	store := New()
	sessionID := uuid.New()

	require.NoError(t, store.Segments.CreateBatch(ctx, []models.TranscriptSegment{
		{MeetingSessionID: sessionID, StartMs: 5000, EndMs: 6000, Text: "third"},
		{MeetingSessionID: sessionID, StartMs: 0, EndMs: 1000, Text: "first"},
		{MeetingSessionID: sessionID, StartMs: 5000, EndMs: 5500, Text: "fourth"},
		{MeetingSessionID: sessionID, StartMs: 2000, EndMs: 1000, Text: "second"},
	}))

	segments, err := store.Segments.ListBySession(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, segments, 4)

	var texts []string
	for _, s := range segments {
		texts = append(texts, s.Text)
		assert.GreaterOrEqual(t, s.EndMs, s.StartMs)
		assert.Equal(t, models.SegmentKindSpeech, s.Kind)
	}
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, texts)
}

func TestSegmentRepo_PlaceholderOnce(t *testing.T) {
	ctx := context.Background()
	store := New()
	sessionID := uuid.New()

	inserted, err := store.Segments.CreatePlaceholder(ctx, models.TranscriptSegment{MeetingSessionID: sessionID, Text: "listening"})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.Segments.CreatePlaceholder(ctx, models.TranscriptSegment{MeetingSessionID: sessionID, Text: "listening"})
	require.NoError(t, err)
	assert.False(t, inserted)

	segments, err := store.Segments.ListBySession(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, segments, 1)
}

func TestArtifactRepo_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	store := New()
	sessionID := uuid.New()

	first, err := store.Artifacts.Upsert(ctx, models.TranscriptArtifact{
		MeetingSessionID: sessionID,
		Summary:          "one",
		Decisions:        []string{"ship it"},
	})
	require.NoError(t, err)

	second, err := store.Artifacts.Upsert(ctx, models.TranscriptArtifact{
		MeetingSessionID: sessionID,
		Summary:          "two",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	stored, err := store.Artifacts.GetBySession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "two", stored.Summary)
	assert.Empty(t, stored.Decisions)
}
