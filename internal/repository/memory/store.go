// Package memory provides in-process implementations of the repository
// interfaces. They back dev mode (STORE_DRIVER=memory) and the service tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neoxmeet/meet-backend/internal/models"
	"github.com/neoxmeet/meet-backend/internal/repository"
)

type state struct {
	mu        sync.Mutex
	rooms     map[uuid.UUID]models.Room
	sessions  map[uuid.UUID]models.MeetingSession
	segments  map[uuid.UUID][]models.TranscriptSegment
	artifacts map[uuid.UUID]models.TranscriptArtifact
}

// Store is the in-memory store. The embedded repository.Store exposes it
// through the same interfaces the Postgres adapter satisfies.
type Store struct {
	*repository.Store
	st *state
}

// New creates an empty in-memory store
func New() *Store {
	st := &state{
		rooms:     make(map[uuid.UUID]models.Room),
		sessions:  make(map[uuid.UUID]models.MeetingSession),
		segments:  make(map[uuid.UUID][]models.TranscriptSegment),
		artifacts: make(map[uuid.UUID]models.TranscriptArtifact),
	}
	return &Store{
		Store: &repository.Store{
			Rooms:     &roomRepo{st},
			Sessions:  &sessionRepo{st},
			Segments:  &segmentRepo{st},
			Artifacts: &artifactRepo{st},
		},
		st: st,
	}
}

// AddRoom seeds a room
func (s *Store) AddRoom(room models.Room) models.Room {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	if room.ID == uuid.Nil {
		room.ID = uuid.New()
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now()
	}
	s.st.rooms[room.ID] = room
	return room
}

// SessionsOf returns every session of a room, open or closed
func (s *Store) SessionsOf(roomID uuid.UUID) []models.MeetingSession {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	var out []models.MeetingSession
	for _, session := range s.st.sessions {
		if session.RoomID == roomID {
			out = append(out, session)
		}
	}
	return out
}

type roomRepo struct{ st *state }

func (r *roomRepo) GetByCode(_ context.Context, code string) (*models.Room, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	for _, room := range r.st.rooms {
		if room.Code == code {
			room := room
			return &room, nil
		}
	}
	return nil, nil
}

func (r *roomRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Room, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	room, ok := r.st.rooms[id]
	if !ok {
		return nil, nil
	}
	return &room, nil
}

type sessionRepo struct{ st *state }

// activeLocked returns the most recently started active session. Caller holds mu.
func (r *sessionRepo) activeLocked(roomID uuid.UUID) (models.MeetingSession, bool) {
	var (
		found  models.MeetingSession
		exists bool
	)
	for _, session := range r.st.sessions {
		if session.RoomID != roomID || session.EndedAt != nil {
			continue
		}
		if !exists || session.StartedAt.After(found.StartedAt) {
			found = session
			exists = true
		}
	}
	return found, exists
}

func (r *sessionRepo) OpenActive(_ context.Context, roomID uuid.UUID, now time.Time) (*models.MeetingSession, bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	if _, ok := r.st.rooms[roomID]; !ok {
		return nil, false, repository.ErrRoomNotFound
	}
	if session, ok := r.activeLocked(roomID); ok {
		return &session, false, nil
	}

	session := models.MeetingSession{ID: uuid.New(), RoomID: roomID, StartedAt: now}
	r.st.sessions[session.ID] = session
	return &session, true, nil
}

func (r *sessionRepo) CloseActive(_ context.Context, roomID uuid.UUID, now time.Time) (*models.MeetingSession, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	session, ok := r.activeLocked(roomID)
	if !ok {
		return nil, nil
	}
	ended := now
	session.EndedAt = &ended
	r.st.sessions[session.ID] = session
	return &session, nil
}

func (r *sessionRepo) GetActive(_ context.Context, roomID uuid.UUID) (*models.MeetingSession, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	session, ok := r.activeLocked(roomID)
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (r *sessionRepo) Get(_ context.Context, id uuid.UUID) (*models.MeetingSession, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	session, ok := r.st.sessions[id]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

type segmentRepo struct{ st *state }

func prepare(segment *models.TranscriptSegment, now time.Time) {
	if segment.ID == uuid.Nil {
		segment.ID = uuid.New()
	}
	if segment.CreatedAt.IsZero() {
		segment.CreatedAt = now
	}
	if segment.Kind == "" {
		segment.Kind = models.SegmentKindSpeech
	}
	if segment.EndMs < segment.StartMs {
		segment.EndMs = segment.StartMs
	}
}

func (r *segmentRepo) CreateBatch(_ context.Context, segments []models.TranscriptSegment) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	now := time.Now()
	for i := range segments {
		prepare(&segments[i], now)
		sid := segments[i].MeetingSessionID
		r.st.segments[sid] = append(r.st.segments[sid], segments[i])
	}
	return nil
}

func (r *segmentRepo) CreatePlaceholder(_ context.Context, segment models.TranscriptSegment) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	for _, existing := range r.st.segments[segment.MeetingSessionID] {
		if existing.Kind == models.SegmentKindPlaceholder {
			return false, nil
		}
	}

	segment.Kind = models.SegmentKindPlaceholder
	prepare(&segment, time.Now())
	r.st.segments[segment.MeetingSessionID] = append(r.st.segments[segment.MeetingSessionID], segment)
	return true, nil
}

func (r *segmentRepo) ListBySession(_ context.Context, sessionID uuid.UUID) ([]models.TranscriptSegment, error) {
	r.st.mu.Lock()
	stored := r.st.segments[sessionID]
	out := make([]models.TranscriptSegment, len(stored))
	copy(out, stored)
	r.st.mu.Unlock()

	models.SortSegments(out)
	return out, nil
}

type artifactRepo struct{ st *state }

func (r *artifactRepo) Upsert(_ context.Context, artifact models.TranscriptArtifact) (*models.TranscriptArtifact, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	now := time.Now()
	if existing, ok := r.st.artifacts[artifact.MeetingSessionID]; ok {
		artifact.ID = existing.ID
		artifact.CreatedAt = existing.CreatedAt
	} else {
		if artifact.ID == uuid.Nil {
			artifact.ID = uuid.New()
		}
		artifact.CreatedAt = now
	}
	artifact.UpdatedAt = now
	if artifact.Decisions == nil {
		artifact.Decisions = []string{}
	}
	if artifact.ActionItems == nil {
		artifact.ActionItems = []string{}
	}

	r.st.artifacts[artifact.MeetingSessionID] = artifact
	return &artifact, nil
}

func (r *artifactRepo) GetBySession(_ context.Context, sessionID uuid.UUID) (*models.TranscriptArtifact, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()

	artifact, ok := r.st.artifacts[sessionID]
	if !ok {
		return nil, nil
	}
	return &artifact, nil
}
