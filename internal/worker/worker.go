// Package worker runs transcription commands pulled from the queue.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/neoxmeet/meet-backend/internal/metrics"
	"github.com/neoxmeet/meet-backend/internal/queue"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Config controls polling and retries
type Config struct {
	Concurrency  int
	PollInterval time.Duration
	RetryBase    time.Duration
	RetryMax     time.Duration
}

// Worker reserves jobs and hands the decoded commands to a Handler
type Worker struct {
	queue   queue.Queue
	handler Handler
	cfg     Config
	logger  logrus.FieldLogger
}

// New creates a worker
func New(q queue.Queue, handler Handler, cfg Config, logger logrus.FieldLogger) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.RetryMax < cfg.RetryBase {
		cfg.RetryMax = cfg.RetryBase
	}
	return &Worker{queue: q, handler: handler, cfg: cfg, logger: logger}
}

// Run processes jobs until ctx is cancelled
func (w *Worker) Run(ctx context.Context) error {
	var wake <-chan struct{}
	if waker, ok := w.queue.(queue.Waker); ok {
		wake = waker.Wake()
	}

	w.logger.WithField("concurrency", w.cfg.Concurrency).Info("transcription worker started")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		id := i
		g.Go(func() error {
			w.loop(ctx, id, wake)
			return nil
		})
	}
	err := g.Wait()

	w.logger.Info("transcription worker stopped")
	return err
}

func (w *Worker) loop(ctx context.Context, id int, wake <-chan struct{}) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	log := w.logger.WithField("worker", id)
	for {
		processed, err := w.ProcessOne(ctx)
		if err != nil && ctx.Err() == nil {
			log.WithError(err).Error("queue error")
		}
		if processed && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		}
	}
}

// ProcessOne reserves and handles at most one job. It reports whether a job
// was reserved.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	job, err := w.queue.Reserve(ctx)
	if err != nil || job == nil {
		return false, err
	}

	log := w.logger.WithFields(logrus.Fields{
		"job":     job.ID,
		"room":    job.Key,
		"action":  job.Action,
		"attempt": job.Attempts,
	})

	cmd, err := queue.Decode(job.Payload)
	if err != nil {
		log.WithError(err).Error("dead-lettering undecodable job")
		metrics.RecordDeadLetter(job.Action)
		metrics.RecordJob(job.Action, "dead")
		return true, w.queue.DeadLetter(ctx, job, err)
	}

	handleErr := w.handler.Handle(ctx, cmd)
	switch {
	case handleErr == nil:
		metrics.RecordJob(job.Action, "done")
		return true, w.queue.Complete(ctx, job)

	case errors.Is(handleErr, context.Canceled) && ctx.Err() != nil:
		// Shutting down: the visibility timeout hands the job to another worker.
		return true, nil

	case job.Attempts >= job.MaxAttempts:
		log.WithError(handleErr).Error("transcription job exhausted its attempts")
		metrics.RecordDeadLetter(job.Action)
		metrics.RecordJob(job.Action, "dead")
		return true, w.queue.DeadLetter(ctx, job, handleErr)

	default:
		delay := Backoff(w.cfg.RetryBase, w.cfg.RetryMax, job.Attempts)
		log.WithError(handleErr).WithField("retry_in", delay.String()).Warn("transcription job failed, retrying")
		metrics.RecordJob(job.Action, "retry")
		return true, w.queue.Retry(ctx, job, delay, handleErr)
	}
}

// Backoff returns base doubled for every attempt after the first, capped at max
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max || delay <= 0 {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
