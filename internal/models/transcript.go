package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Segment kinds
const (
	SegmentKindSpeech      = "speech"
	SegmentKindPlaceholder = "placeholder"
)

// TranscriptSegment is a timestamped span of transcribed speech within a session.
type TranscriptSegment struct {
	ID               uuid.UUID `json:"id" db:"id"`
	MeetingSessionID uuid.UUID `json:"meetingSessionId" db:"meeting_session_id"`
	StartMs          int64     `json:"startMs" db:"start_ms"`
	EndMs            int64     `json:"endMs" db:"end_ms"`
	Text             string    `json:"text" db:"text"`
	SpeakerIdentity  *string   `json:"speakerIdentity" db:"speaker_identity"`
	Lang             string    `json:"lang" db:"lang"`
	Kind             string    `json:"kind" db:"kind"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
}

// SortSegments orders segments by StartMs, keeping insertion order for ties.
func SortSegments(segments []TranscriptSegment) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].StartMs < segments[j].StartMs
	})
}

// TranscriptArtifact is the synthesized recap of a session. One per session.
type TranscriptArtifact struct {
	ID                uuid.UUID      `json:"id" db:"id"`
	MeetingSessionID  uuid.UUID      `json:"meetingSessionId" db:"meeting_session_id"`
	CleanedTranscript string         `json:"cleanedTranscript" db:"cleaned_transcript"`
	Summary           string         `json:"summary" db:"summary"`
	Decisions         pq.StringArray `json:"decisions" db:"decisions"`
	ActionItems       pq.StringArray `json:"actionItems" db:"action_items"`
	CreatedAt         time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time      `json:"updatedAt" db:"updated_at"`
}
