// Package broadcast delivers room events to live participants.
package broadcast

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/neoxmeet/meet-backend/internal/models"
)

// Event types
const (
	EventCaption           = "caption"
	EventTranscriberStatus = "transcriber-status"
)

// Transcriber statuses
const (
	StatusListening = "listening"
	StatusStopped   = "stopped"
)

// Event is the JSON document sent on the room data channel
type Event struct {
	Type             string                     `json:"type"`
	Segments         []models.TranscriptSegment `json:"segments,omitempty"`
	Status           string                     `json:"status,omitempty"`
	MeetingSessionID *uuid.UUID                 `json:"meetingSessionId,omitempty"`
}

// CaptionEvent carries the whole segment batch of one upload
func CaptionEvent(segments []models.TranscriptSegment) Event {
	return Event{Type: EventCaption, Segments: segments}
}

// StatusEvent reports the transcriber state. sessionID may be uuid.Nil.
func StatusEvent(status string, sessionID uuid.UUID) Event {
	e := Event{Type: EventTranscriberStatus, Status: status}
	if sessionID != uuid.Nil {
		e.MeetingSessionID = &sessionID
	}
	return e
}

// Encode marshals the event
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Broadcaster sends an event to every participant of a room
type Broadcaster interface {
	Broadcast(ctx context.Context, roomCode string, event Event) error
}
