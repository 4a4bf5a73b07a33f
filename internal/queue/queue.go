package queue

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/neoxmeet/meet-backend/internal/logging"
)

// Job is a reserved command. Attempts counts the current attempt.
type Job struct {
	ID          string
	Key         string
	Action      string
	Payload     []byte
	Attempts    int
	MaxAttempts int
}

// DeadJob is a job that exhausted its attempts or could not be decoded
type DeadJob struct {
	ID        string    `json:"id" db:"id"`
	Key       string    `json:"roomCode" db:"room_code"`
	Action    string    `json:"action" db:"action"`
	Payload   []byte    `json:"-" db:"payload"`
	Attempts  int       `json:"attempts" db:"attempts"`
	LastError string    `json:"lastError" db:"last_error"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Queue is a durable command queue keyed by room code. Reserve never hands
// out a job while an earlier job with the same key is pending or running, so
// commands for one room are processed strictly in enqueue order.
type Queue interface {
	Enqueue(ctx context.Context, cmd Command) error
	// Reserve claims the next ready job, or returns nil when none is ready.
	Reserve(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, job *Job) error
	// Retry makes the job ready again after delay. It keeps its place at the
	// head of its key.
	Retry(ctx context.Context, job *Job, delay time.Duration, cause error) error
	DeadLetter(ctx context.Context, job *Job, cause error) error
}

// Waker is implemented by queues that can signal new work without polling
type Waker interface {
	Wake() <-chan struct{}
}

// DeadLetterStore lists and requeues dead-lettered jobs
type DeadLetterStore interface {
	DeadLetters(ctx context.Context, limit int) ([]DeadJob, error)
	Requeue(ctx context.Context, id string) error
}

// Options tune queue behavior shared by every backend
type Options struct {
	// MaxAttempts is stamped on each enqueued job.
	MaxAttempts int
	// Visibility is how long a reserved job stays claimed before another
	// worker may take it over.
	Visibility time.Duration
	// Logger receives backend diagnostics. Defaults to discarding them.
	Logger logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 5
	}
	if o.Visibility <= 0 {
		o.Visibility = 2 * time.Minute
	}
	return o
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
