// Package livekit adapts the LiveKit server APIs: service credentials, the
// room data channel and signed webhooks.
package livekit

import (
	"time"

	"github.com/livekit/protocol/auth"
)

// TranscriberIdentity is the participant identity of the transcription agent
const TranscriberIdentity = "transcriber-bot"

const serviceTokenTTL = time.Hour

// TokenMinter signs short-lived participant credentials locally
type TokenMinter struct {
	apiKey    string
	apiSecret string
}

// NewTokenMinter creates a TokenMinter for the API key pair
func NewTokenMinter(apiKey, apiSecret string) *TokenMinter {
	return &TokenMinter{apiKey: apiKey, apiSecret: apiSecret}
}

// MintServiceToken returns a hidden, subscribe-only credential for the room
func (m *TokenMinter) MintServiceToken(room, identity string) (string, error) {
	at := auth.NewAccessToken(m.apiKey, m.apiSecret)
	f := false
	t := true
	grant := &auth.VideoGrant{
		Room:           room,
		RoomJoin:       true,
		CanPublish:     &f,
		CanPublishData: &t,
		CanSubscribe:   &t,
		Hidden:         true,
	}
	return at.
		AddGrant(grant).
		SetIdentity(identity).
		SetValidFor(serviceTokenTTL).
		ToJWT()
}
