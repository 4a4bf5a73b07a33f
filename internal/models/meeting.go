package models

import (
	"time"

	"github.com/google/uuid"
)

// Room is a conferencing room owned by a single user.
type Room struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	OwnerID   uuid.UUID `json:"ownerId" db:"owner_id"`
	Title     string    `json:"title" db:"title"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// MeetingSession is the durable record of a meeting happening in a room.
// At most one session per room has a nil EndedAt.
type MeetingSession struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	RoomID    uuid.UUID  `json:"roomId" db:"room_id"`
	StartedAt time.Time  `json:"startedAt" db:"started_at"`
	EndedAt   *time.Time `json:"endedAt" db:"ended_at"`
}

// Active reports whether the session has not been closed yet.
func (s *MeetingSession) Active() bool {
	return s != nil && s.EndedAt == nil
}

// UserContext identifies the authenticated caller of a request.
type UserContext struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email,omitempty"`
}
