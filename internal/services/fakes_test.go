package services

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/neoxmeet/meet-backend/internal/broadcast"
	"github.com/neoxmeet/meet-backend/internal/logging"
	"github.com/neoxmeet/meet-backend/internal/models"
	"github.com/neoxmeet/meet-backend/internal/providers"
	"github.com/neoxmeet/meet-backend/internal/queue"
	"github.com/neoxmeet/meet-backend/internal/repository/memory"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ownerID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	otherID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

type fakeMedia struct {
	mu           sync.Mutex
	duration     float64
	probeErr     error
	normalizeErr error
	probed       []string
	normalized   []string
}

func (m *fakeMedia) Duration(_ context.Context, path string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probed = append(m.probed, path)
	return m.duration, m.probeErr
}

func (m *fakeMedia) Normalize(_ context.Context, input, output string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.normalized = append(m.normalized, input)
	if m.normalizeErr != nil {
		return m.normalizeErr
	}
	return os.WriteFile(output, []byte("RIFF"), 0o600)
}

type fakeTranscriber struct {
	result *providers.Transcription
	err    error
	calls  int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string) (*providers.Transcription, error) {
	f.calls++
	return f.result, f.err
}

type fakeSummarizer struct {
	response   string
	err        error
	transcript string
	calls      int
}

func (f *fakeSummarizer) Summarize(_ context.Context, transcript string) (string, error) {
	f.calls++
	f.transcript = transcript
	return f.response, f.err
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	err    error
	rooms  []string
	events []broadcast.Event
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, room string, event broadcast.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.rooms = append(b.rooms, room)
	b.events = append(b.events, event)
	return nil
}

type fakeMinter struct {
	err error
}

func (m fakeMinter) MintServiceToken(room, identity string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "token-" + room + "-" + identity, nil
}

// brokenQueue fails every enqueue
type brokenQueue struct {
	queue.Queue
}

func (brokenQueue) Enqueue(context.Context, queue.Command) error {
	return errors.New("broker unreachable")
}

type env struct {
	store    *memory.Store
	room     models.Room
	queue    *queue.MemoryQueue
	sessions *SessionManager
}

func newEnv() *env {
	store := memory.New()
	room := store.AddRoom(models.Room{Code: "abc-defg-hij", OwnerID: ownerID, Title: "Weekly sync"})
	return &env{
		store:    store,
		room:     room,
		queue:    queue.NewMemoryQueue(queue.Options{}),
		sessions: NewSessionManager(store.Rooms, store.Sessions, logging.Discard()),
	}
}

// counterValue reads a counter from the default registry; 0 when absent
func counterValue(name string, labels map[string]string) float64 {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return 0
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, m := range family.GetMetric() {
			for _, pair := range m.GetLabel() {
				if labels[pair.GetName()] != pair.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}
