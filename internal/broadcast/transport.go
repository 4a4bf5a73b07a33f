package broadcast

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
)

// EventsChannel names the Redis channel and the Postgres notification channel
// relayed events travel on
const EventsChannel = "neoxmeet_room_events"

// maxNotifyPayload is Postgres' NOTIFY payload limit less a margin
const maxNotifyPayload = 7900

// ErrPayloadTooLarge is returned when an event does not fit a NOTIFY payload
var ErrPayloadTooLarge = errors.New("event exceeds the notification payload limit")

// RedisTransport publishes on a Redis pub/sub channel
type RedisTransport struct {
	client *redis.Client
}

func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

func (t *RedisTransport) Publish(ctx context.Context, payload []byte) error {
	return t.client.Publish(ctx, EventsChannel, payload).Err()
}

// Subscribe returns the payloads published on the channel until ctx ends
func (t *RedisTransport) Subscribe(ctx context.Context) <-chan string {
	sub := t.client.Subscribe(ctx, EventsChannel)
	out := make(chan string, subscriberBuffer)

	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// PostgresTransport publishes with pg_notify. Receivers LISTEN on
// EventsChannel through the pgx pool.
type PostgresTransport struct {
	db *sqlx.DB
}

func NewPostgresTransport(db *sqlx.DB) *PostgresTransport {
	return &PostgresTransport{db: db}
}

// Publish refuses payloads over the NOTIFY limit; large caption batches are
// only delivered by the process that produced them.
func (t *PostgresTransport) Publish(ctx context.Context, payload []byte) error {
	if len(payload) > maxNotifyPayload {
		return ErrPayloadTooLarge
	}
	_, err := t.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, EventsChannel, string(payload))
	return err
}
