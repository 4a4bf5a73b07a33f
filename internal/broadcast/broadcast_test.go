package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/neoxmeet/meet-backend/internal/logging"
	"github.com/neoxmeet/meet-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_Encode(t *testing.T) {
	sessionID := uuid.MustParse("6f1c2a43-6a3b-4c1e-9a52-3f6d2b9e0a11")

	data, err := StatusEvent(StatusListening, sessionID).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"transcriber-status","status":"listening","meetingSessionId":"6f1c2a43-6a3b-4c1e-9a52-3f6d2b9e0a11"}`, string(data))

	data, err = StatusEvent(StatusStopped, uuid.Nil).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"transcriber-status","status":"stopped"}`, string(data))

	data, err = CaptionEvent([]models.TranscriptSegment{{StartMs: 0, EndMs: 1500, Text: "hi", Lang: "en"}}).Encode()
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "caption", decoded["type"])
	assert.Len(t, decoded["segments"], 1)
}

func TestHub_FanOut(t *testing.T) {
	hub := NewHub(logging.Discard())
	a := hub.Subscribe("room-a")
	b := hub.Subscribe("room-a")
	other := hub.Subscribe("room-b")

	require.NoError(t, hub.Broadcast(context.Background(), "room-a", StatusEvent(StatusListening, uuid.Nil)))

	assert.Len(t, a.C, 1)
	assert.Len(t, b.C, 1)
	assert.Len(t, other.C, 0)

	a.Close()
	<-a.C
	_, open := <-a.C
	assert.False(t, open, "closing ends the stream after buffered events")
	assert.Equal(t, 1, hub.Subscribers("room-a"))
	a.Close()
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	hub := NewHub(logging.Discard())
	slow := hub.Subscribe("room")

	for i := 0; i < subscriberBuffer+1; i++ {
		require.NoError(t, hub.Broadcast(context.Background(), "room", StatusEvent(StatusListening, uuid.Nil)))
	}

	assert.Equal(t, 0, hub.Subscribers("room"))
	count := 0
	for range slow.C {
		count++
	}
	assert.Equal(t, subscriberBuffer, count)
}

type recordingBroadcaster struct {
	events []Event
	err    error
}

func (r *recordingBroadcaster) Broadcast(_ context.Context, _ string, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestMulti(t *testing.T) {
	primary := &recordingBroadcaster{}
	secondary := &recordingBroadcaster{err: errors.New("down")}
	multi := NewMulti(logging.Discard(), primary, secondary)

	err := multi.Broadcast(context.Background(), "room", StatusEvent(StatusStopped, uuid.Nil))
	assert.NoError(t, err, "secondary failures are logged only")
	assert.Len(t, primary.events, 1)
	assert.Len(t, secondary.events, 1)

	primary.err = errors.New("livekit down")
	err = multi.Broadcast(context.Background(), "room", StatusEvent(StatusStopped, uuid.Nil))
	assert.EqualError(t, err, "livekit down")
	assert.Len(t, secondary.events, 2, "secondaries still receive the event")
}

// loopback stands in for Redis or Postgres: every published payload reaches
// every receiver, including the publisher.
type loopback struct {
	receivers []chan string
	err       error
}

func (l *loopback) Publish(_ context.Context, payload []byte) error {
	if l.err != nil {
		return l.err
	}
	for _, ch := range l.receivers {
		ch <- string(payload)
	}
	return nil
}

func (l *loopback) receiver() chan string {
	ch := make(chan string, 8)
	l.receivers = append(l.receivers, ch)
	return ch
}

func TestRelay_DeliversWorkerEventsToServerViewers(t *testing.T) {
	transport := &loopback{}
	serverHub := NewHub(logging.Discard())
	server := NewRelay(serverHub, transport, logging.Discard())
	worker := NewRelay(NewHub(logging.Discard()), transport, logging.Discard())

	serverInbox := transport.receiver()
	viewer := serverHub.Subscribe("abc-defg-hij")
	sessionID := uuid.New()

	require.NoError(t, worker.Broadcast(context.Background(), "abc-defg-hij", StatusEvent(StatusListening, sessionID)))

	ctx, cancel := context.WithCancel(context.Background())
	close(serverInbox)
	server.Receive(ctx, serverInbox)
	cancel()

	require.Len(t, viewer.C, 1)
	var got Event
	require.NoError(t, json.Unmarshal(<-viewer.C, &got))
	assert.Equal(t, EventTranscriberStatus, got.Type)
	assert.Equal(t, StatusListening, got.Status)
	require.NotNil(t, got.MeetingSessionID)
	assert.Equal(t, sessionID, *got.MeetingSessionID)
}

func TestRelay_SkipsOwnEvents(t *testing.T) {
	transport := &loopback{}
	hub := NewHub(logging.Discard())
	relay := NewRelay(hub, transport, logging.Discard())
	inbox := transport.receiver()
	viewer := hub.Subscribe("room")

	require.NoError(t, relay.Broadcast(context.Background(), "room", StatusEvent(StatusStopped, uuid.Nil)))
	close(inbox)
	relay.Receive(context.Background(), inbox)

	assert.Len(t, viewer.C, 1, "delivered locally once, not again from the transport")
}

func TestRelay_PublishFailureStillDeliversLocally(t *testing.T) {
	transport := &loopback{err: errors.New("redis down")}
	hub := NewHub(logging.Discard())
	relay := NewRelay(hub, transport, logging.Discard())
	viewer := hub.Subscribe("room")

	err := relay.Broadcast(context.Background(), "room", StatusEvent(StatusStopped, uuid.Nil))
	assert.Error(t, err)
	assert.Len(t, viewer.C, 1)
}

func TestRelay_IgnoresMalformedPayloads(t *testing.T) {
	hub := NewHub(logging.Discard())
	relay := NewRelay(hub, &loopback{}, logging.Discard())
	viewer := hub.Subscribe("room")

	inbox := make(chan string, 2)
	inbox <- "not json"
	inbox <- `{"origin":"other","room":"","event":{"type":"caption"}}`
	close(inbox)
	relay.Receive(context.Background(), inbox)

	assert.Len(t, viewer.C, 0)
}

func TestRelay_OversizedEventsStayLocal(t *testing.T) {
	hub := NewHub(logging.Discard())
	relay := NewRelay(hub, NewPostgresTransport(nil), logging.Discard())
	viewer := hub.Subscribe("room")

	long := make([]models.TranscriptSegment, 200)
	for i := range long {
		start := int64(i) * 1000
		long[i] = models.TranscriptSegment{StartMs: start, EndMs: start + 900, Text: "a fairly long caption line", Lang: "en"}
	}

	require.NoError(t, relay.Broadcast(context.Background(), "room", CaptionEvent(long)))
	assert.Len(t, viewer.C, 1)
}

func TestPostgresTransport_RejectsOversizedPayload(t *testing.T) {
	transport := NewPostgresTransport(nil)
	err := transport.Publish(context.Background(), make([]byte, maxNotifyPayload+1))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}
