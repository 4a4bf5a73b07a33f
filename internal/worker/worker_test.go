package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neoxmeet/meet-backend/internal/broadcast"
	"github.com/neoxmeet/meet-backend/internal/logging"
	"github.com/neoxmeet/meet-backend/internal/models"
	"github.com/neoxmeet/meet-backend/internal/queue"
	"github.com/neoxmeet/meet-backend/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	room  string
	event broadcast.Event
}

type flakyBroadcaster struct {
	mu       sync.Mutex
	failures int
	events   []sent
}

func (b *flakyBroadcaster) Broadcast(_ context.Context, room string, event broadcast.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
		return errors.New("data channel unavailable")
	}
	b.events = append(b.events, sent{room: room, event: event})
	return nil
}

func (b *flakyBroadcaster) delivered() []sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sent(nil), b.events...)
}

type fixture struct {
	store       *memory.Store
	queue       *queue.MemoryQueue
	broadcaster *flakyBroadcaster
	worker      *Worker
}

func newFixture(maxAttempts, failures int) *fixture {
	store := memory.New()
	q := queue.NewMemoryQueue(queue.Options{MaxAttempts: maxAttempts, Visibility: time.Minute})
	b := &flakyBroadcaster{failures: failures}
	logger := logging.Discard()
	handler := NewTranscriptionHandler(store.Segments, b, logger)
	w := New(q, handler, Config{
		Concurrency:  1,
		PollInterval: 10 * time.Millisecond,
		RetryBase:    time.Nanosecond,
		RetryMax:     time.Nanosecond,
	}, logger)
	return &fixture{store: store, queue: q, broadcaster: b, worker: w}
}

// drain processes jobs until the queue has nothing ready.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		processed, err := f.worker.ProcessOne(ctx)
		require.NoError(t, err)
		if !processed {
			if f.queue.Len() == 0 {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}
	t.Fatalf("queue not drained, %d jobs left", f.queue.Len())
}

func startCmd(room string, session uuid.UUID) queue.Start {
	return queue.Start{Room: room, Session: session, Credential: "svc-token", Endpoint: "wss://lk.example.com"}
}

func TestWorker_StartWritesPlaceholderAndBroadcasts(t *testing.T) {
	f := newFixture(5, 0)
	session := uuid.New()
	require.NoError(t, f.queue.Enqueue(context.Background(), startCmd("abc-def", session)))

	f.drain(t)

	segments, err := f.store.Segments.ListBySession(context.Background(), session)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	seg := segments[0]
	assert.Equal(t, PlaceholderText, seg.Text)
	assert.Equal(t, models.SegmentKindPlaceholder, seg.Kind)
	assert.Equal(t, "auto", seg.Lang)
	assert.Equal(t, int64(0), seg.StartMs)
	assert.Equal(t, int64(0), seg.EndMs)
	require.NotNil(t, seg.SpeakerIdentity)
	assert.Equal(t, "transcriber-bot", *seg.SpeakerIdentity)

	events := f.broadcaster.delivered()
	require.Len(t, events, 1)
	assert.Equal(t, "abc-def", events[0].room)
	assert.Equal(t, broadcast.EventTranscriberStatus, events[0].event.Type)
	assert.Equal(t, broadcast.StatusListening, events[0].event.Status)
	require.NotNil(t, events[0].event.MeetingSessionID)
	assert.Equal(t, session, *events[0].event.MeetingSessionID)
}

func TestWorker_RetriedStartWritesOnePlaceholder(t *testing.T) {
	f := newFixture(5, 2)
	session := uuid.New()
	require.NoError(t, f.queue.Enqueue(context.Background(), startCmd("abc-def", session)))

	f.drain(t)

	segments, err := f.store.Segments.ListBySession(context.Background(), session)
	require.NoError(t, err)
	assert.Len(t, segments, 1)
	assert.Len(t, f.broadcaster.delivered(), 1)

	dead, err := f.queue.DeadLetters(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, dead)
}

func TestWorker_StopBroadcastsWithoutWriting(t *testing.T) {
	f := newFixture(5, 0)
	session := uuid.New()
	require.NoError(t, f.queue.Enqueue(context.Background(), queue.Stop{Room: "abc-def", Session: session, Endpoint: "wss://lk.example.com"}))

	f.drain(t)

	segments, err := f.store.Segments.ListBySession(context.Background(), session)
	require.NoError(t, err)
	assert.Empty(t, segments)

	events := f.broadcaster.delivered()
	require.Len(t, events, 1)
	assert.Equal(t, broadcast.StatusStopped, events[0].event.Status)
}

func TestWorker_DeadLettersAfterMaxAttempts(t *testing.T) {
	f := newFixture(3, 100)
	session := uuid.New()
	require.NoError(t, f.queue.Enqueue(context.Background(), startCmd("abc-def", session)))
	require.NoError(t, f.queue.Enqueue(context.Background(), queue.Stop{Room: "abc-def", Session: session}))

	// Let the stop through once the start is dead.
	f.drain(t)

	dead, err := f.queue.DeadLetters(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, dead, 2)
	assert.Equal(t, queue.ActionStop, dead[0].Action)
	assert.Equal(t, queue.ActionStart, dead[1].Action)
	assert.Equal(t, 3, dead[1].Attempts)
	assert.Contains(t, dead[1].LastError, "data channel unavailable")
}

func TestWorker_MalformedPayloadIsDeadLetteredImmediately(t *testing.T) {
	f := newFixture(5, 0)
	f.queue.EnqueueRaw("abc-def", queue.ActionStart, []byte(`{"action":"start","roomCode":"abc-def"}`))

	f.drain(t)

	dead, err := f.queue.DeadLetters(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 1, dead[0].Attempts)
	assert.Empty(t, f.broadcaster.delivered())
}

func TestWorker_ProcessesRoomCommandsInOrder(t *testing.T) {
	f := newFixture(5, 1)
	session := uuid.New()
	ctx := context.Background()
	require.NoError(t, f.queue.Enqueue(ctx, startCmd("abc-def", session)))
	require.NoError(t, f.queue.Enqueue(ctx, queue.Stop{Room: "abc-def", Session: session}))

	f.drain(t)

	events := f.broadcaster.delivered()
	require.Len(t, events, 2)
	assert.Equal(t, broadcast.StatusListening, events[0].event.Status)
	assert.Equal(t, broadcast.StatusStopped, events[1].event.Status)
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	f := newFixture(5, 0)
	session := uuid.New()
	require.NoError(t, f.queue.Enqueue(context.Background(), startCmd("abc-def", session)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx) }()

	require.Eventually(t, func() bool { return len(f.broadcaster.delivered()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestBackoff(t *testing.T) {
	base, max := time.Second, 10*time.Second
	assert.Equal(t, time.Second, Backoff(base, max, 0))
	assert.Equal(t, time.Second, Backoff(base, max, 1))
	assert.Equal(t, 2*time.Second, Backoff(base, max, 2))
	assert.Equal(t, 8*time.Second, Backoff(base, max, 4))
	assert.Equal(t, max, Backoff(base, max, 5))
	assert.Equal(t, max, Backoff(base, max, 60))
}
