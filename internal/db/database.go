package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sirupsen/logrus"
)

// Database wraps the pgx connection pool used for LISTEN/NOTIFY. Regular
// queries go through sqlx in the database package.
type Database struct {
	Pool *pgxpool.Pool
}

// Connect opens a pgx pool for the given connection URL
func Connect(ctx context.Context, dsn string) (*Database, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect pgx pool: %w", err)
	}
	return &Database{Pool: pool}, nil
}

// Close releases the pool
func (d *Database) Close() {
	d.Pool.Close()
}

// Listen subscribes to a notification channel and sends every payload on the
// returned channel until ctx is cancelled. The connection is re-acquired after
// failures so a database restart only delays delivery. The reader must keep
// draining the channel.
func (d *Database) Listen(ctx context.Context, channel string, logger logrus.FieldLogger) <-chan string {
	out := make(chan string, 16)

	go func() {
		defer close(out)
		for ctx.Err() == nil {
			if err := d.listenOnce(ctx, channel, out); err != nil && ctx.Err() == nil {
				logger.WithError(err).WithField("channel", channel).Warn("listen connection lost, retrying")
				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}
	}()

	return out
}

func (d *Database) listenOnce(ctx context.Context, channel string, out chan<- string) error {
	conn, err := d.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+quoteIdent(channel)); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		select {
		case out <- n.Payload:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func quoteIdent(s string) string {
	out := []byte{'"'}
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			out = append(out, '"')
		}
		out = append(out, s[i])
	}
	return string(append(out, '"'))
}
