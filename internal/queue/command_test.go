package queue

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	session := uuid.New()

	data, err := Encode(Start{Room: "abc", Session: session, Credential: "jwt", Endpoint: "ws://lk"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"start","roomCode":"abc","meetingSessionId":"`+session.String()+`","serviceToken":"jwt","livekitUrl":"ws://lk"}`, string(data))

	cmd, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, Start{Room: "abc", Session: session, Credential: "jwt", Endpoint: "ws://lk"}, cmd)

	data, err = Encode(Stop{Room: "abc", Session: session, Endpoint: "ws://lk"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "serviceToken")

	cmd, err = Decode(data)
	require.NoError(t, err)
	assert.Equal(t, Stop{Room: "abc", Session: session, Endpoint: "ws://lk"}, cmd)
}

func TestDecode_Malformed(t *testing.T) {
	session := uuid.New().String()

	tests := map[string]string{
		"not json":        `{`,
		"unknown action":  `{"action":"pause","roomCode":"abc","meetingSessionId":"` + session + `"}`,
		"missing room":    `{"action":"stop","meetingSessionId":"` + session + `"}`,
		"missing session": `{"action":"stop","roomCode":"abc"}`,
		"start no token":  `{"action":"start","roomCode":"abc","meetingSessionId":"` + session + `"}`,
		"bad session id":  `{"action":"stop","roomCode":"abc","meetingSessionId":"nope"}`,
	}

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			assert.ErrorIs(t, err, ErrMalformedCommand)
		})
	}
}

func TestEncode_RejectsStartWithoutCredential(t *testing.T) {
	_, err := Encode(Start{Room: "abc", Session: uuid.New()})
	assert.ErrorIs(t, err, ErrMalformedCommand)
}
