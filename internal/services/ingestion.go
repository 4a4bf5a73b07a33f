package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neoxmeet/meet-backend/internal/broadcast"
	"github.com/neoxmeet/meet-backend/internal/media"
	"github.com/neoxmeet/meet-backend/internal/metrics"
	"github.com/neoxmeet/meet-backend/internal/models"
	"github.com/neoxmeet/meet-backend/internal/providers"
	"github.com/neoxmeet/meet-backend/internal/repository"
	"github.com/neoxmeet/meet-backend/internal/storage"
	"github.com/sirupsen/logrus"
)

const (
	defaultLang        = "auto"
	normalizedFilename = "normalized.wav"
)

// IngestionLimits bound what an upload may cost
type IngestionLimits struct {
	MaxFileBytes    int64
	MaxAudioSeconds int
	WorkDir         string
}

// Upload is an audio clip submitted for transcription
type Upload struct {
	Filename string
	Size     int64
	Body     io.Reader
	// SessionID is the raw meetingSessionId field; empty means transcribe only.
	SessionID string
}

// IngestResult is returned by Transcribe. CaptionsDelivered is false when no
// session was given or when the caption broadcast failed after the segments
// were stored.
type IngestResult struct {
	Segments          []models.TranscriptSegment `json:"segments"`
	CaptionsDelivered bool                       `json:"captionsDelivered"`
}

// IngestionPipeline validates, normalizes and transcribes uploaded audio
type IngestionPipeline struct {
	limits      IngestionLimits
	prober      media.Prober
	normalizer  media.Normalizer
	transcriber providers.Transcriber
	archiver    storage.Archiver
	rooms       repository.RoomRepository
	sessions    repository.SessionRepository
	segments    repository.SegmentRepository
	broadcaster broadcast.Broadcaster
	logger      logrus.FieldLogger
}

// IngestionDeps are the collaborators of the pipeline. Transcriber and
// Archiver may be nil.
type IngestionDeps struct {
	Prober      media.Prober
	Normalizer  media.Normalizer
	Transcriber providers.Transcriber
	Archiver    storage.Archiver
	Store       *repository.Store
	Broadcaster broadcast.Broadcaster
}

// NewIngestionPipeline creates an IngestionPipeline
func NewIngestionPipeline(limits IngestionLimits, deps IngestionDeps, logger logrus.FieldLogger) *IngestionPipeline {
	return &IngestionPipeline{
		limits:      limits,
		prober:      deps.Prober,
		normalizer:  deps.Normalizer,
		transcriber: deps.Transcriber,
		archiver:    deps.Archiver,
		rooms:       deps.Store.Rooms,
		sessions:    deps.Store.Sessions,
		segments:    deps.Store.Segments,
		broadcaster: deps.Broadcaster,
		logger:      logger,
	}
}

// Transcribe runs the whole pipeline for one upload. The workspace holding
// the clip is removed on every return path.
func (p *IngestionPipeline) Transcribe(ctx context.Context, upload Upload) (*IngestResult, error) {
	const op = "transcribe audio"

	if upload.Body == nil || upload.Size <= 0 {
		return nil, validationError(op, "audio file is required")
	}
	if p.limits.MaxFileBytes > 0 && upload.Size > p.limits.MaxFileBytes {
		return nil, validationError(op, fmt.Sprintf("audio file exceeds the %d MB limit", p.limits.MaxFileBytes/(1024*1024)))
	}
	if p.transcriber == nil {
		return nil, notConfigured(op, ErrProviderNotConfigured)
	}

	target, err := p.resolveTarget(ctx, op, upload.SessionID)
	if err != nil {
		return nil, err
	}

	ws, err := media.NewWorkspace(p.limits.WorkDir)
	if err != nil {
		return nil, internalError(op, err)
	}
	defer func() {
		if err := ws.Release(); err != nil {
			p.logger.WithError(err).WithField("dir", ws.Dir()).Warn("failed to remove ingest workspace")
		}
	}()

	// Admission ends here; the rest runs to completion even if the client goes away.
	ctx = context.WithoutCancel(ctx)

	inputPath, err := ws.WriteFile(inputName(upload.Filename), upload.Body)
	if err != nil {
		return nil, internalError(op, err)
	}

	started := time.Now()
	duration, err := p.prober.Duration(ctx, inputPath)
	metrics.ObserveIngestStep("probe", started)
	if err != nil {
		return nil, upstreamError(op, "failed to read audio duration", err)
	}
	if p.limits.MaxAudioSeconds > 0 && duration > float64(p.limits.MaxAudioSeconds) {
		return nil, validationError(op, fmt.Sprintf("audio exceeds the %d second limit", p.limits.MaxAudioSeconds))
	}

	p.archive(ctx, target, inputPath, upload.Filename)

	normalized := ws.Path(normalizedFilename)
	started = time.Now()
	err = p.normalizer.Normalize(ctx, inputPath, normalized)
	metrics.ObserveIngestStep("normalize", started)
	if err != nil {
		return nil, upstreamError(op, "failed to normalize audio", err)
	}

	started = time.Now()
	transcription, err := p.transcriber.Transcribe(ctx, normalized)
	metrics.ObserveIngestStep("transcribe", started)
	if err != nil {
		if errors.Is(err, providers.ErrNotConfigured) {
			return nil, notConfigured(op, err)
		}
		return nil, upstreamError(op, "transcription failed", err)
	}

	var sessionID uuid.UUID
	if target != nil {
		sessionID = target.session.ID
	}
	segments := BuildSegments(transcription, duration, sessionID)

	result := &IngestResult{Segments: segments}
	if target == nil {
		return result, nil
	}

	started = time.Now()
	err = p.segments.CreateBatch(ctx, segments)
	metrics.ObserveIngestStep("persist", started)
	if err != nil {
		return nil, internalError(op, fmt.Errorf("persist segments: %w", err))
	}

	started = time.Now()
	err = p.broadcaster.Broadcast(ctx, target.room.Code, broadcast.CaptionEvent(segments))
	metrics.ObserveIngestStep("broadcast", started)
	if err != nil {
		metrics.RecordBroadcastFailure(broadcast.EventCaption)
		p.logger.WithError(err).WithFields(logrus.Fields{
			"room":     target.room.Code,
			"session":  sessionID,
			"segments": len(segments),
		}).Warn("caption broadcast failed; segments were stored")
		return result, nil
	}

	result.CaptionsDelivered = true
	return result, nil
}

type ingestTarget struct {
	session *models.MeetingSession
	room    *models.Room
}

// resolveTarget loads the session and room the segments belong to. A session
// id that does not resolve is rejected.
func (p *IngestionPipeline) resolveTarget(ctx context.Context, op, rawID string) (*ingestTarget, error) {
	rawID = strings.TrimSpace(rawID)
	if rawID == "" {
		return nil, nil
	}

	id, err := ParseSessionID(rawID)
	if err != nil {
		return nil, err
	}
	session, err := p.sessions.Get(ctx, id)
	if err != nil {
		return nil, internalError(op, err)
	}
	if session == nil {
		return nil, notFoundError(op, "meeting session not found")
	}
	room, err := p.rooms.GetByID(ctx, session.RoomID)
	if err != nil {
		return nil, internalError(op, err)
	}
	if room == nil {
		return nil, notFoundError(op, "room not found")
	}
	return &ingestTarget{session: session, room: room}, nil
}

func (p *IngestionPipeline) archive(ctx context.Context, target *ingestTarget, path, filename string) {
	if p.archiver == nil {
		return
	}

	var sessionID uuid.UUID
	if target != nil {
		sessionID = target.session.ID
	}

	f, err := os.Open(path)
	if err != nil {
		metrics.RecordArchiveFailure()
		p.logger.WithError(err).Warn("failed to open clip for archiving")
		return
	}
	defer f.Close()

	started := time.Now()
	key, err := p.archiver.Archive(ctx, sessionID, inputName(filename), f)
	metrics.ObserveIngestStep("archive", started)
	if err != nil {
		metrics.RecordArchiveFailure()
		p.logger.WithError(err).WithField("session", sessionID).Warn("failed to archive clip")
		return
	}
	p.logger.WithFields(logrus.Fields{"session": sessionID, "key": key}).Debug("clip archived")
}

// inputName keeps the base name of the client filename. Names that would
// resolve to a directory become "upload".
func inputName(filename string) string {
	name := filepath.Base(filepath.FromSlash(filename))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "upload"
	}
	return name
}

// BuildSegments maps a provider transcription to segments. Offsets are
// rounded to milliseconds and endMs never precedes startMs. When the provider
// returned no timings, one segment covers the whole clip.
func BuildSegments(t *providers.Transcription, durationSec float64, sessionID uuid.UUID) []models.TranscriptSegment {
	lang := defaultLang
	text := ""
	var parts []providers.TranscriptionSegment
	if t != nil {
		if t.Language != "" {
			lang = t.Language
		}
		text = t.Text
		parts = t.Segments
	}

	now := time.Now().UTC()
	newSegment := func(startMs, endMs int64, text, speaker string) models.TranscriptSegment {
		if endMs < startMs {
			endMs = startMs
		}
		segment := models.TranscriptSegment{
			ID:               uuid.New(),
			MeetingSessionID: sessionID,
			StartMs:          startMs,
			EndMs:            endMs,
			Text:             strings.TrimSpace(text),
			Lang:             lang,
			Kind:             models.SegmentKindSpeech,
			CreatedAt:        now,
		}
		if speaker != "" {
			segment.SpeakerIdentity = &speaker
		}
		return segment
	}

	if len(parts) == 0 {
		return []models.TranscriptSegment{newSegment(0, toMillis(durationSec), text, "")}
	}

	segments := make([]models.TranscriptSegment, 0, len(parts))
	for _, part := range parts {
		segments = append(segments, newSegment(toMillis(part.StartSec), toMillis(part.EndSec), part.Text, part.Speaker))
	}
	return segments
}

func toMillis(sec float64) int64 {
	if sec <= 0 || math.IsNaN(sec) {
		return 0
	}
	return int64(math.Round(sec * 1000))
}
