package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/neoxmeet/meet-backend/internal/models"
	"github.com/neoxmeet/meet-backend/internal/providers"
	"github.com/neoxmeet/meet-backend/internal/repository"
	"github.com/sirupsen/logrus"
)

// RecapSynthesizer builds the recap artifact of a session from its segments
type RecapSynthesizer struct {
	sessions   repository.SessionRepository
	segments   repository.SegmentRepository
	artifacts  repository.ArtifactRepository
	summarizer providers.Summarizer
	logger     logrus.FieldLogger
}

// NewRecapSynthesizer creates a RecapSynthesizer. summarizer may be nil when
// no provider is configured.
func NewRecapSynthesizer(store *repository.Store, summarizer providers.Summarizer, logger logrus.FieldLogger) *RecapSynthesizer {
	return &RecapSynthesizer{
		sessions:   store.Sessions,
		segments:   store.Segments,
		artifacts:  store.Artifacts,
		summarizer: summarizer,
		logger:     logger,
	}
}

// Generate summarizes the session transcript and replaces its artifact
func (r *RecapSynthesizer) Generate(ctx context.Context, sessionID uuid.UUID) (*models.TranscriptArtifact, error) {
	const op = "generate recap"

	session, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, internalError(op, err)
	}
	if session == nil {
		return nil, notFoundError(op, "meeting session not found")
	}
	if r.summarizer == nil {
		return nil, notConfigured(op, ErrProviderNotConfigured)
	}

	segments, err := r.segments.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, internalError(op, err)
	}
	transcript := RenderTranscript(segments)

	raw, err := r.summarizer.Summarize(ctx, transcript)
	if err != nil {
		if errors.Is(err, providers.ErrNotConfigured) {
			return nil, notConfigured(op, err)
		}
		return nil, upstreamError(op, "summarization failed", err)
	}

	fields, err := ParseRecap(raw)
	if err != nil {
		r.logger.WithError(err).WithField("session", session.ID).Warn("unusable recap response, storing empty fields")
	}

	artifact, err := r.artifacts.Upsert(ctx, models.TranscriptArtifact{
		MeetingSessionID:  session.ID,
		CleanedTranscript: fields.CleanedTranscript,
		Summary:           fields.Summary,
		Decisions:         pq.StringArray(fields.Decisions),
		ActionItems:       pq.StringArray(fields.ActionItems),
	})
	if err != nil {
		return nil, internalError(op, err)
	}

	r.logger.WithFields(logrus.Fields{
		"session":  session.ID,
		"segments": len(segments),
	}).Info("recap generated")
	return artifact, nil
}

// Get returns the current artifact of the session
func (r *RecapSynthesizer) Get(ctx context.Context, sessionID uuid.UUID) (*models.TranscriptArtifact, error) {
	artifact, err := r.artifacts.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, internalError("get recap", err)
	}
	if artifact == nil {
		return nil, notFoundError("get recap", "recap not found")
	}
	return artifact, nil
}

// Segments returns the transcript of a session ordered by start offset
func (r *RecapSynthesizer) Segments(ctx context.Context, sessionID uuid.UUID) ([]models.TranscriptSegment, error) {
	session, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, internalError("list segments", err)
	}
	if session == nil {
		return nil, notFoundError("list segments", "meeting session not found")
	}
	segments, err := r.segments.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, internalError("list segments", err)
	}
	return segments, nil
}

// RenderTranscript writes one "MM:SS text" line per spoken segment, in
// startMs order. Placeholder segments are left out.
func RenderTranscript(segments []models.TranscriptSegment) string {
	ordered := make([]models.TranscriptSegment, len(segments))
	copy(ordered, segments)
	models.SortSegments(ordered)

	lines := make([]string, 0, len(ordered))
	for _, s := range ordered {
		if s.Kind == models.SegmentKindPlaceholder {
			continue
		}
		totalSec := s.StartMs / 1000
		lines = append(lines, fmt.Sprintf("%02d:%02d %s", totalSec/60, totalSec%60, s.Text))
	}
	return strings.Join(lines, "\n")
}

// RecapContent is the parsed summarizer response
type RecapContent struct {
	CleanedTranscript string
	Summary           string
	Decisions         []string
	ActionItems       []string
}

// ParseRecap reads the summarizer JSON leniently. Missing or mistyped fields
// come back empty; the returned error only reports that the document itself
// could not be parsed, in which case every field is empty.
func ParseRecap(raw string) (RecapContent, error) {
	content := RecapContent{Decisions: []string{}, ActionItems: []string{}}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(extractJSON(raw)), &doc); err != nil {
		return content, fmt.Errorf("parse recap: %w", err)
	}

	content.CleanedTranscript = stringField(doc["cleanedTranscript"])
	content.Summary = stringField(doc["summary"])
	content.Decisions = listField(doc["decisions"])
	content.ActionItems = listField(doc["actionItems"])
	return content, nil
}

// extractJSON trims code fences or prose some models wrap around the object
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return raw
	}
	return raw[start : end+1]
}

func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func listField(raw json.RawMessage) []string {
	out := []string{}
	var items []interface{}
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return out
	}
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
