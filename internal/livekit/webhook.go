package livekit

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/webhook"
	"google.golang.org/protobuf/encoding/protojson"
)

// WebhookVerifier checks the signature of a webhook delivery and decodes it
type WebhookVerifier interface {
	Verify(authorization string, body []byte) (*livekit.WebhookEvent, error)
}

// SignedWebhookVerifier validates deliveries signed with the API key pair
type SignedWebhookVerifier struct {
	provider auth.KeyProvider
}

// NewWebhookVerifier creates a verifier for the API key pair
func NewWebhookVerifier(apiKey, apiSecret string) *SignedWebhookVerifier {
	return &SignedWebhookVerifier{provider: auth.NewFileBasedKeyProviderFromMap(map[string]string{apiKey: apiSecret})}
}

// Verify checks the Authorization token and the body digest it carries
func (v *SignedWebhookVerifier) Verify(authorization string, body []byte) (*livekit.WebhookEvent, error) {
	req, err := http.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", authorization)

	data, err := webhook.Receive(req, v.provider)
	if err != nil {
		return nil, fmt.Errorf("verify webhook: %w", err)
	}
	return DecodeWebhookEvent(data)
}

// DecodeWebhookEvent parses a webhook body
func DecodeWebhookEvent(data []byte) (*livekit.WebhookEvent, error) {
	event := &livekit.WebhookEvent{}
	if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	return event, nil
}
