package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/neoxmeet/meet-backend/internal/livekit"
	"github.com/neoxmeet/meet-backend/internal/metrics"
	"github.com/neoxmeet/meet-backend/internal/queue"
	"github.com/sirupsen/logrus"
)

// Transcription statuses returned to the room owner
const (
	StatusQueued   = "queued"
	StatusStopping = "stopping"
)

// CredentialMinter signs room credentials for the transcription agent
type CredentialMinter interface {
	MintServiceToken(room, identity string) (string, error)
}

// CommandResult is returned by Start and Stop
type CommandResult struct {
	SessionID uuid.UUID `json:"sessionId"`
	Status    string    `json:"status"`
}

// TranscriptionService turns owner requests into queued agent commands
type TranscriptionService struct {
	sessions   *SessionManager
	minter     CredentialMinter
	queue      queue.Queue
	livekitURL string
	logger     logrus.FieldLogger
}

// NewTranscriptionService creates a TranscriptionService
func NewTranscriptionService(sessions *SessionManager, minter CredentialMinter, q queue.Queue, livekitURL string, logger logrus.FieldLogger) *TranscriptionService {
	return &TranscriptionService{
		sessions:   sessions,
		minter:     minter,
		queue:      q,
		livekitURL: livekitURL,
		logger:     logger,
	}
}

// Start opens (or reuses) the room session and queues the agent start
func (s *TranscriptionService) Start(ctx context.Context, userID uuid.UUID, roomCode string) (*CommandResult, error) {
	room, session, err := s.sessions.OpenForOwner(ctx, userID, roomCode)
	if err != nil {
		return nil, err
	}

	token, err := s.minter.MintServiceToken(room.Code, livekit.TranscriberIdentity)
	if err != nil {
		return nil, internalError("mint service token", err)
	}

	cmd := queue.Start{Room: room.Code, Session: session.ID, Credential: token, Endpoint: s.livekitURL}
	if err := s.enqueue(ctx, cmd); err != nil {
		return nil, err
	}
	return &CommandResult{SessionID: session.ID, Status: StatusQueued}, nil
}

// Stop closes the room session and queues the agent stop. The session is
// ended before the command is queued.
func (s *TranscriptionService) Stop(ctx context.Context, userID uuid.UUID, roomCode string) (*CommandResult, error) {
	room, session, err := s.sessions.CloseForOwner(ctx, userID, roomCode)
	if err != nil {
		return nil, err
	}

	cmd := queue.Stop{Room: room.Code, Session: session.ID, Endpoint: s.livekitURL}
	if err := s.enqueue(ctx, cmd); err != nil {
		return nil, err
	}
	return &CommandResult{SessionID: session.ID, Status: StatusStopping}, nil
}

// enqueue never rolls back the session change that preceded it
func (s *TranscriptionService) enqueue(ctx context.Context, cmd queue.Command) error {
	if err := s.queue.Enqueue(ctx, cmd); err != nil {
		metrics.RecordEnqueueFailure(cmd.Action())
		s.logger.WithError(err).WithFields(logrus.Fields{
			"room":    cmd.RoomCode(),
			"session": cmd.SessionID(),
			"action":  cmd.Action(),
		}).Error("failed to queue transcription command")
		return upstreamError("enqueue "+cmd.Action(), "transcription queue unavailable", err)
	}
	return nil
}
