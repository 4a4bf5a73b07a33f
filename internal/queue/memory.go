package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

const (
	statusPending = "pending"
	statusRunning = "running"
	statusDone    = "done"
	statusDead    = "dead"
)

type memoryJob struct {
	Job
	seq         int64
	status      string
	runAt       time.Time
	lockedUntil time.Time
	lastError   string
	updatedAt   time.Time
}

// MemoryQueue is an in-process Queue for dev mode and tests
type MemoryQueue struct {
	mu   sync.Mutex
	opts Options
	seq  int64
	jobs []*memoryJob
	dead []*memoryJob
	wake chan struct{}
	now  func() time.Time
}

var (
	_ Queue           = (*MemoryQueue)(nil)
	_ Waker           = (*MemoryQueue)(nil)
	_ DeadLetterStore = (*MemoryQueue)(nil)
)

// NewMemoryQueue creates an empty in-memory queue
func NewMemoryQueue(opts Options) *MemoryQueue {
	return &MemoryQueue{
		opts: opts.withDefaults(),
		wake: make(chan struct{}, 1),
		now:  time.Now,
	}
}

func (q *MemoryQueue) Wake() <-chan struct{} {
	return q.wake
}

func (q *MemoryQueue) Enqueue(_ context.Context, cmd Command) error {
	payload, err := Encode(cmd)
	if err != nil {
		return err
	}
	q.EnqueueRaw(cmd.RoomCode(), cmd.Action(), payload)
	return nil
}

// EnqueueRaw adds a payload without validating it
func (q *MemoryQueue) EnqueueRaw(key, action string, payload []byte) {
	q.mu.Lock()
	q.seq++
	now := q.now()
	q.jobs = append(q.jobs, &memoryJob{
		Job: Job{
			ID:          strconv.FormatInt(q.seq, 10),
			Key:         key,
			Action:      action,
			Payload:     payload,
			MaxAttempts: q.opts.MaxAttempts,
		},
		seq:       q.seq,
		status:    statusPending,
		runAt:     now,
		updatedAt: now,
	})
	q.mu.Unlock()

	notify(q.wake)
}

func (q *MemoryQueue) Reserve(_ context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	seen := make(map[string]bool)
	for _, j := range q.jobs {
		if seen[j.Key] {
			continue
		}
		seen[j.Key] = true

		ready := (j.status == statusPending && !j.runAt.After(now)) ||
			(j.status == statusRunning && j.lockedUntil.Before(now))
		if !ready {
			continue
		}

		j.status = statusRunning
		j.Attempts++
		j.lockedUntil = now.Add(q.opts.Visibility)
		j.updatedAt = now
		job := j.Job
		return &job, nil
	}
	return nil, nil
}

func (q *MemoryQueue) Complete(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, err := q.indexLocked(job.ID)
	if err != nil {
		return err
	}
	q.jobs[i].status = statusDone
	q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
	return nil
}

func (q *MemoryQueue) Retry(_ context.Context, job *Job, delay time.Duration, cause error) error {
	q.mu.Lock()
	i, err := q.indexLocked(job.ID)
	if err != nil {
		q.mu.Unlock()
		return err
	}
	j := q.jobs[i]
	now := q.now()
	j.status = statusPending
	j.runAt = now.Add(delay)
	j.lockedUntil = time.Time{}
	j.lastError = errString(cause)
	j.updatedAt = now
	q.mu.Unlock()

	notify(q.wake)
	return nil
}

func (q *MemoryQueue) DeadLetter(_ context.Context, job *Job, cause error) error {
	q.mu.Lock()
	i, err := q.indexLocked(job.ID)
	if err != nil {
		q.mu.Unlock()
		return err
	}
	j := q.jobs[i]
	j.status = statusDead
	j.lastError = errString(cause)
	j.updatedAt = q.now()
	q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
	q.dead = append(q.dead, j)
	q.mu.Unlock()

	// The key may have a successor that is now at its head.
	notify(q.wake)
	return nil
}

func (q *MemoryQueue) DeadLetters(_ context.Context, limit int) ([]DeadJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []DeadJob
	for i := len(q.dead) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		j := q.dead[i]
		out = append(out, DeadJob{
			ID:        j.ID,
			Key:       j.Key,
			Action:    j.Action,
			Payload:   j.Payload,
			Attempts:  j.Attempts,
			LastError: j.lastError,
			UpdatedAt: j.updatedAt,
		})
	}
	return out, nil
}

func (q *MemoryQueue) Requeue(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, j := range q.dead {
		if j.ID != id {
			continue
		}
		q.dead = append(q.dead[:i], q.dead[i+1:]...)
		q.seq++
		j.seq = q.seq
		j.status = statusPending
		j.Attempts = 0
		j.runAt = q.now()
		q.jobs = append(q.jobs, j)
		notify(q.wake)
		return nil
	}
	return fmt.Errorf("dead job %s: %w", id, ErrJobNotFound)
}

// Len returns the number of pending or running jobs
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// ErrJobNotFound is returned when a job is no longer tracked by the queue
var ErrJobNotFound = errors.New("job not found")

func (q *MemoryQueue) indexLocked(id string) (int, error) {
	for i, j := range q.jobs {
		if j.ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
}
