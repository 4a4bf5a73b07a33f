package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	redisPrefix     = "neoxmeet:transcription:"
	redisRoomsKey   = redisPrefix + "rooms"
	redisDeadKey    = redisPrefix + "dead"
	redisWakeTopic  = redisPrefix + "wake"
	redisDeadMaxLen = 1000
)

func redisQueueKey(room string) string { return redisPrefix + "q:" + room }
func redisLockKey(room string) string  { return redisPrefix + "lock:" + room }

// releaseLock deletes the room lock only when this job still owns it
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisJob struct {
	ID          string          `json:"id"`
	Room        string          `json:"room"`
	Action      string          `json:"action"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	RunAt       time.Time       `json:"runAt"`
	LastError   string          `json:"lastError,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (j redisJob) job() *Job {
	return &Job{
		ID:          j.ID,
		Key:         j.Room,
		Action:      j.Action,
		Payload:     []byte(j.Payload),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
	}
}

// RedisQueue keeps one list per room, a set of rooms with work and a
// per-room lock held by the worker processing the head of that list.
type RedisQueue struct {
	client *redis.Client
	opts   Options
	wake   chan struct{}
	now    func() time.Time
}

var (
	_ Queue           = (*RedisQueue)(nil)
	_ Waker           = (*RedisQueue)(nil)
	_ DeadLetterStore = (*RedisQueue)(nil)
)

// NewRedisClient connects to REDIS_URL
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRedisQueue creates a queue on the given client
func NewRedisQueue(client *redis.Client, opts Options) *RedisQueue {
	return &RedisQueue{client: client, opts: opts.withDefaults(), wake: make(chan struct{}, 1), now: time.Now}
}

// Listen forwards wake-up messages published by other processes until ctx ends
func (q *RedisQueue) Listen(ctx context.Context) {
	sub := q.client.Subscribe(ctx, redisWakeTopic)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				notify(q.wake)
			}
		}
	}()
}

func (q *RedisQueue) Wake() <-chan struct{} {
	return q.wake
}

func (q *RedisQueue) Enqueue(ctx context.Context, cmd Command) error {
	payload, err := Encode(cmd)
	if err != nil {
		return err
	}

	now := q.now()
	rec, err := json.Marshal(redisJob{
		ID:          uuid.NewString(),
		Room:        cmd.RoomCode(),
		Action:      cmd.Action(),
		Payload:     payload,
		MaxAttempts: q.opts.MaxAttempts,
		RunAt:       now,
		UpdatedAt:   now,
	})
	if err != nil {
		return err
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, redisQueueKey(cmd.RoomCode()), rec)
		pipe.SAdd(ctx, redisRoomsKey, cmd.RoomCode())
		pipe.Publish(ctx, redisWakeTopic, cmd.RoomCode())
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue %s command: %w", cmd.Action(), err)
	}
	return nil
}

func (q *RedisQueue) Reserve(ctx context.Context) (*Job, error) {
	rooms, err := q.client.SMembers(ctx, redisRoomsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	for _, room := range rooms {
		head, err := q.head(ctx, room)
		if err != nil {
			return nil, err
		}
		if head == nil {
			q.forgetRoom(ctx, room)
			continue
		}
		if head.RunAt.After(q.now()) {
			continue
		}

		lockID := head.ID
		locked, err := q.client.SetNX(ctx, redisLockKey(room), lockID, q.opts.Visibility).Result()
		if err != nil {
			return nil, fmt.Errorf("lock room %s: %w", room, err)
		}
		if !locked {
			continue
		}

		// Re-read under the lock: the head may have been completed meanwhile.
		head, err = q.head(ctx, room)
		if err != nil || head == nil || head.ID != lockID {
			releaseLock.Run(ctx, q.client, []string{redisLockKey(room)}, lockID)
			if err != nil {
				return nil, err
			}
			continue
		}

		head.Attempts++
		head.UpdatedAt = q.now()
		if err := q.setHead(ctx, room, head); err != nil {
			return nil, err
		}
		return head.job(), nil
	}
	return nil, nil
}

func (q *RedisQueue) Complete(ctx context.Context, job *Job) error {
	if _, err := q.popHead(ctx, job); err != nil {
		return err
	}
	return q.unlock(ctx, job)
}

func (q *RedisQueue) Retry(ctx context.Context, job *Job, delay time.Duration, cause error) error {
	head, err := q.ownedHead(ctx, job)
	if err != nil {
		return err
	}
	head.RunAt = q.now().Add(delay)
	head.LastError = errString(cause)
	head.UpdatedAt = q.now()
	if err := q.setHead(ctx, job.Key, head); err != nil {
		return err
	}
	return q.unlock(ctx, job)
}

func (q *RedisQueue) DeadLetter(ctx context.Context, job *Job, cause error) error {
	head, err := q.popHead(ctx, job)
	if err != nil {
		return err
	}
	head.LastError = errString(cause)
	head.UpdatedAt = q.now()
	rec, err := json.Marshal(head)
	if err != nil {
		return err
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, redisDeadKey, rec)
		pipe.LTrim(ctx, redisDeadKey, 0, redisDeadMaxLen-1)
		pipe.Publish(ctx, redisWakeTopic, job.Key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead-letter job %s: %w", job.ID, err)
	}
	return q.unlock(ctx, job)
}

func (q *RedisQueue) DeadLetters(ctx context.Context, limit int) ([]DeadJob, error) {
	if limit <= 0 {
		limit = 50
	}
	recs, err := q.client.LRange(ctx, redisDeadKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	jobs := make([]DeadJob, 0, len(recs))
	for _, rec := range recs {
		var j redisJob
		if err := json.Unmarshal([]byte(rec), &j); err != nil {
			continue
		}
		jobs = append(jobs, DeadJob{
			ID:        j.ID,
			Key:       j.Room,
			Action:    j.Action,
			Payload:   []byte(j.Payload),
			Attempts:  j.Attempts,
			LastError: j.LastError,
			UpdatedAt: j.UpdatedAt,
		})
	}
	return jobs, nil
}

func (q *RedisQueue) Requeue(ctx context.Context, id string) error {
	recs, err := q.client.LRange(ctx, redisDeadKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("list dead letters: %w", err)
	}

	for _, rec := range recs {
		var j redisJob
		if err := json.Unmarshal([]byte(rec), &j); err != nil || j.ID != id {
			continue
		}
		j.Attempts = 0
		j.LastError = ""
		j.RunAt = q.now()
		j.UpdatedAt = q.now()
		fresh, err := json.Marshal(j)
		if err != nil {
			return err
		}

		_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, redisDeadKey, 1, rec)
			pipe.RPush(ctx, redisQueueKey(j.Room), fresh)
			pipe.SAdd(ctx, redisRoomsKey, j.Room)
			pipe.Publish(ctx, redisWakeTopic, j.Room)
			return nil
		})
		if err != nil {
			return fmt.Errorf("requeue job %s: %w", id, err)
		}
		return nil
	}
	return fmt.Errorf("dead job %s: %w", id, ErrJobNotFound)
}

func (q *RedisQueue) head(ctx context.Context, room string) (*redisJob, error) {
	rec, err := q.client.LIndex(ctx, redisQueueKey(room), 0).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read head of %s: %w", room, err)
	}

	var j redisJob
	if err := json.Unmarshal([]byte(rec), &j); err != nil {
		return nil, fmt.Errorf("decode head of %s: %w", room, err)
	}
	return &j, nil
}

func (q *RedisQueue) setHead(ctx context.Context, room string, j *redisJob) error {
	rec, err := json.Marshal(j)
	if err != nil {
		return err
	}
	if err := q.client.LSet(ctx, redisQueueKey(room), 0, rec).Err(); err != nil {
		return fmt.Errorf("update head of %s: %w", room, err)
	}
	return nil
}

// ownedHead returns the head of the job's room, checking it is that job
func (q *RedisQueue) ownedHead(ctx context.Context, job *Job) (*redisJob, error) {
	head, err := q.head(ctx, job.Key)
	if err != nil {
		return nil, err
	}
	if head == nil || head.ID != job.ID {
		return nil, fmt.Errorf("job %s: %w", job.ID, ErrJobNotFound)
	}
	return head, nil
}

func (q *RedisQueue) popHead(ctx context.Context, job *Job) (*redisJob, error) {
	head, err := q.ownedHead(ctx, job)
	if err != nil {
		return nil, err
	}
	if err := q.client.LPop(ctx, redisQueueKey(job.Key)).Err(); err != nil {
		return nil, fmt.Errorf("pop job %s: %w", job.ID, err)
	}
	return head, nil
}

func (q *RedisQueue) unlock(ctx context.Context, job *Job) error {
	if err := releaseLock.Run(ctx, q.client, []string{redisLockKey(job.Key)}, job.ID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("unlock room %s: %w", job.Key, err)
	}
	return nil
}

// forgetRoom drops an empty room from the room set unless a job is pushed
// concurrently.
func (q *RedisQueue) forgetRoom(ctx context.Context, room string) {
	key := redisQueueKey(room)
	err := q.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.LLen(ctx, key).Result()
		if err != nil || n > 0 {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, redisRoomsKey, room)
			return nil
		})
		return err
	}, key)
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		q.opts.Logger.WithError(err).WithField("room", room).Debug("failed to drop empty room from the room set")
	}
}
