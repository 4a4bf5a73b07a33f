package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/neoxmeet/meet-backend/internal/logging"
	"github.com/neoxmeet/meet-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recapJSON = `{
  "cleanedTranscript": "Kickoff. Budget. Wrap up.",
  "summary": "The team agreed on the budget.",
  "decisions": ["Approve budget"],
  "actionItems": ["Send invoice", "Book venue"]
}`

func seedSegments(t *testing.T, e *env) *models.MeetingSession {
	t.Helper()
	ctx := context.Background()
	session, err := e.sessions.OpenSession(ctx, e.room.ID)
	require.NoError(t, err)

	speaker := "transcriber-bot"
	_, err = e.store.Segments.CreatePlaceholder(ctx, models.TranscriptSegment{
		MeetingSessionID: session.ID, Text: "bot is active", SpeakerIdentity: &speaker, Lang: "auto",
	})
	require.NoError(t, err)
	require.NoError(t, e.store.Segments.CreateBatch(ctx, []models.TranscriptSegment{
		{MeetingSessionID: session.ID, StartMs: 120000, EndMs: 125000, Text: "Wrap up", Lang: "en"},
		{MeetingSessionID: session.ID, StartMs: 0, EndMs: 4000, Text: "Kickoff", Lang: "en"},
		{MeetingSessionID: session.ID, StartMs: 60000, EndMs: 61000, Text: "Budget", Lang: "en"},
	}))
	return session
}

func TestRecap_RendersInStartOrder(t *testing.T) {
	e := newEnv()
	session := seedSegments(t, e)
	summarizer := &fakeSummarizer{response: recapJSON}
	recap := NewRecapSynthesizer(e.store.Store, summarizer, logging.Discard())

	_, err := recap.Generate(context.Background(), session.ID)
	require.NoError(t, err)

	assert.Equal(t, "00:00 Kickoff\n01:00 Budget\n02:00 Wrap up", summarizer.transcript)
}

func TestRecap_GenerateIsIdempotent(t *testing.T) {
	e := newEnv()
	session := seedSegments(t, e)
	recap := NewRecapSynthesizer(e.store.Store, &fakeSummarizer{response: recapJSON}, logging.Discard())
	ctx := context.Background()

	first, err := recap.Generate(ctx, session.ID)
	require.NoError(t, err)
	second, err := recap.Generate(ctx, session.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CleanedTranscript, second.CleanedTranscript)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, []string(first.Decisions), []string(second.Decisions))
	assert.Equal(t, []string{"Send invoice", "Book venue"}, []string(second.ActionItems))

	stored, err := recap.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, stored.ID)
	assert.Equal(t, "The team agreed on the budget.", stored.Summary)
}

func TestRecap_UnparseableResponseStoresEmptyFields(t *testing.T) {
	e := newEnv()
	session := seedSegments(t, e)
	recap := NewRecapSynthesizer(e.store.Store, &fakeSummarizer{response: "Sorry, I cannot help with that."}, logging.Discard())

	artifact, err := recap.Generate(context.Background(), session.ID)
	require.NoError(t, err)

	assert.Empty(t, artifact.CleanedTranscript)
	assert.Empty(t, artifact.Summary)
	assert.NotNil(t, artifact.Decisions)
	assert.Empty(t, artifact.Decisions)
	assert.Empty(t, artifact.ActionItems)
}

func TestRecap_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown session", func(t *testing.T) {
		e := newEnv()
		recap := NewRecapSynthesizer(e.store.Store, &fakeSummarizer{response: recapJSON}, logging.Discard())
		_, err := recap.Generate(ctx, uuid.New())
		assert.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("provider failure", func(t *testing.T) {
		e := newEnv()
		session := seedSegments(t, e)
		recap := NewRecapSynthesizer(e.store.Store, &fakeSummarizer{err: errors.New("rate limited")}, logging.Discard())
		_, err := recap.Generate(ctx, session.ID)
		assert.Equal(t, KindUpstream, KindOf(err))
		_, err = recap.Get(ctx, session.ID)
		assert.Equal(t, KindNotFound, KindOf(err))
	})

	t.Run("no provider", func(t *testing.T) {
		e := newEnv()
		session := seedSegments(t, e)
		recap := NewRecapSynthesizer(e.store.Store, nil, logging.Discard())
		_, err := recap.Generate(ctx, session.ID)
		assert.Equal(t, KindValidation, KindOf(err))
	})
}

func TestParseRecap(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    RecapContent
		wantErr bool
	}{
		{
			name: "complete",
			raw:  recapJSON,
			want: RecapContent{
				CleanedTranscript: "Kickoff. Budget. Wrap up.",
				Summary:           "The team agreed on the budget.",
				Decisions:         []string{"Approve budget"},
				ActionItems:       []string{"Send invoice", "Book venue"},
			},
		},
		{
			name: "fenced and partial",
			raw:  "```json\n{\"summary\": \"short\", \"decisions\": \"not a list\"}\n```",
			want: RecapContent{Summary: "short", Decisions: []string{}, ActionItems: []string{}},
		},
		{
			name:    "not json",
			raw:     "no recap today",
			want:    RecapContent{Decisions: []string{}, ActionItems: []string{}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRecap(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderTranscript_FormatsMinutes(t *testing.T) {
	out := RenderTranscript([]models.TranscriptSegment{
		{StartMs: 3725000, Text: "late"},
		{StartMs: 59999, Text: "almost a minute"},
	})
	assert.Equal(t, "00:59 almost a minute\n62:05 late", out)
}
