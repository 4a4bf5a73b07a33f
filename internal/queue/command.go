// Package queue carries transcription commands from the request path to the
// worker, preserving order per room.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Command actions
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// Command is either Start or Stop
type Command interface {
	Action() string
	RoomCode() string
	SessionID() uuid.UUID
	isCommand()
}

// Start asks the transcription agent to join the room with Credential
type Start struct {
	Room       string
	Session    uuid.UUID
	Credential string
	Endpoint   string
}

// Stop tells the room the transcription agent is leaving. The agent
// disconnects on its own signal, so no credential is carried.
type Stop struct {
	Room     string
	Session  uuid.UUID
	Endpoint string
}

func (Start) Action() string         { return ActionStart }
func (c Start) RoomCode() string     { return c.Room }
func (c Start) SessionID() uuid.UUID { return c.Session }
func (Start) isCommand()             {}

func (Stop) Action() string         { return ActionStop }
func (c Stop) RoomCode() string     { return c.Room }
func (c Stop) SessionID() uuid.UUID { return c.Session }
func (Stop) isCommand()             {}

// ErrMalformedCommand is returned for payloads that can never be handled
var ErrMalformedCommand = errors.New("malformed transcription command")

type envelope struct {
	Action           string    `json:"action"`
	RoomCode         string    `json:"roomCode"`
	MeetingSessionID uuid.UUID `json:"meetingSessionId"`
	ServiceToken     string    `json:"serviceToken,omitempty"`
	LivekitURL       string    `json:"livekitUrl"`
}

// Encode serializes a command to its wire envelope
func Encode(cmd Command) ([]byte, error) {
	var env envelope
	switch c := cmd.(type) {
	case Start:
		env = envelope{Action: ActionStart, RoomCode: c.Room, MeetingSessionID: c.Session, ServiceToken: c.Credential, LivekitURL: c.Endpoint}
	case Stop:
		env = envelope{Action: ActionStop, RoomCode: c.Room, MeetingSessionID: c.Session, LivekitURL: c.Endpoint}
	default:
		return nil, fmt.Errorf("%w: unknown command %T", ErrMalformedCommand, cmd)
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode parses a wire envelope. Errors wrap ErrMalformedCommand.
func Decode(data []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	if err := env.validate(); err != nil {
		return nil, err
	}

	switch env.Action {
	case ActionStart:
		return Start{Room: env.RoomCode, Session: env.MeetingSessionID, Credential: env.ServiceToken, Endpoint: env.LivekitURL}, nil
	default:
		return Stop{Room: env.RoomCode, Session: env.MeetingSessionID, Endpoint: env.LivekitURL}, nil
	}
}

func (e envelope) validate() error {
	switch {
	case e.Action != ActionStart && e.Action != ActionStop:
		return fmt.Errorf("%w: unknown action %q", ErrMalformedCommand, e.Action)
	case e.RoomCode == "":
		return fmt.Errorf("%w: missing room code", ErrMalformedCommand)
	case e.MeetingSessionID == uuid.Nil:
		return fmt.Errorf("%w: missing meeting session id", ErrMalformedCommand)
	case e.Action == ActionStart && e.ServiceToken == "":
		return fmt.Errorf("%w: start without service token", ErrMalformedCommand)
	}
	return nil
}
