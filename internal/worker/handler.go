package worker

import (
	"context"
	"fmt"

	"github.com/neoxmeet/meet-backend/internal/broadcast"
	"github.com/neoxmeet/meet-backend/internal/livekit"
	"github.com/neoxmeet/meet-backend/internal/metrics"
	"github.com/neoxmeet/meet-backend/internal/models"
	"github.com/neoxmeet/meet-backend/internal/queue"
	"github.com/neoxmeet/meet-backend/internal/repository"
	"github.com/sirupsen/logrus"
)

// PlaceholderText is written once per session when the transcriber starts
const PlaceholderText = "Transcriber bot is active. Real-time audio streaming will be captured from LiveKit participants."

// Handler executes one decoded command
type Handler interface {
	Handle(ctx context.Context, cmd queue.Command) error
}

// TranscriptionHandler performs the side effects of start and stop commands
type TranscriptionHandler struct {
	segments    repository.SegmentRepository
	broadcaster broadcast.Broadcaster
	logger      logrus.FieldLogger
}

// NewTranscriptionHandler creates a TranscriptionHandler
func NewTranscriptionHandler(segments repository.SegmentRepository, broadcaster broadcast.Broadcaster, logger logrus.FieldLogger) *TranscriptionHandler {
	return &TranscriptionHandler{segments: segments, broadcaster: broadcaster, logger: logger}
}

func (h *TranscriptionHandler) Handle(ctx context.Context, cmd queue.Command) error {
	switch c := cmd.(type) {
	case queue.Start:
		return h.start(ctx, c)
	case queue.Stop:
		return h.stop(ctx, c)
	default:
		return fmt.Errorf("unhandled command %T", cmd)
	}
}

// start is safe to repeat: the placeholder insert is skipped once the
// session has one, so a retried job only re-sends the status.
func (h *TranscriptionHandler) start(ctx context.Context, c queue.Start) error {
	speaker := livekit.TranscriberIdentity
	inserted, err := h.segments.CreatePlaceholder(ctx, models.TranscriptSegment{
		MeetingSessionID: c.Session,
		StartMs:          0,
		EndMs:            0,
		Text:             PlaceholderText,
		SpeakerIdentity:  &speaker,
		Lang:             "auto",
	})
	if err != nil {
		return fmt.Errorf("record placeholder: %w", err)
	}

	log := h.logger.WithFields(logrus.Fields{"room": c.Room, "session": c.Session})
	if !inserted {
		log.Debug("placeholder already recorded")
	}

	if err := h.broadcaster.Broadcast(ctx, c.Room, broadcast.StatusEvent(broadcast.StatusListening, c.Session)); err != nil {
		metrics.RecordBroadcastFailure(broadcast.EventTranscriberStatus)
		return fmt.Errorf("broadcast listening: %w", err)
	}

	log.Info("transcriber listening")
	return nil
}

func (h *TranscriptionHandler) stop(ctx context.Context, c queue.Stop) error {
	if err := h.broadcaster.Broadcast(ctx, c.Room, broadcast.StatusEvent(broadcast.StatusStopped, c.Session)); err != nil {
		metrics.RecordBroadcastFailure(broadcast.EventTranscriberStatus)
		return fmt.Errorf("broadcast stopped: %w", err)
	}

	h.logger.WithFields(logrus.Fields{"room": c.Room, "session": c.Session}).Info("transcriber stopped")
	return nil
}
