package livekit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go"
	"github.com/neoxmeet/meet-backend/internal/broadcast"
)

// dataSender is the part of the room service client the broadcaster uses
type dataSender interface {
	SendData(ctx context.Context, req *livekit.SendDataRequest) (*livekit.SendDataResponse, error)
}

// Broadcaster publishes events on the reliable data channel of a room
type Broadcaster struct {
	client dataSender
}

var _ broadcast.Broadcaster = (*Broadcaster)(nil)

// HTTPURL converts a LiveKit websocket URL to the matching API URL
func HTTPURL(url string) (string, error) {
	switch {
	case strings.HasPrefix(url, "ws://"):
		return "http://" + strings.TrimPrefix(url, "ws://"), nil
	case strings.HasPrefix(url, "wss://"):
		return "https://" + strings.TrimPrefix(url, "wss://"), nil
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return url, nil
	}
	return "", errors.New("url must start with ws://, wss://, http:// or https://")
}

// NewBroadcaster creates a broadcaster backed by the LiveKit room service
func NewBroadcaster(url, apiKey, apiSecret string) (*Broadcaster, error) {
	httpURL, err := HTTPURL(url)
	if err != nil {
		return nil, err
	}
	return &Broadcaster{client: lksdk.NewRoomServiceClient(httpURL, apiKey, apiSecret)}, nil
}

// Broadcast sends the event to every participant of the room
func (b *Broadcaster) Broadcast(ctx context.Context, roomCode string, event broadcast.Event) error {
	payload, err := event.Encode()
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	_, err = b.client.SendData(ctx, &livekit.SendDataRequest{
		Room: roomCode,
		Data: payload,
		Kind: livekit.DataPacket_RELIABLE,
	})
	if err != nil {
		return fmt.Errorf("livekit send data to %s: %w", roomCode, err)
	}
	return nil
}
