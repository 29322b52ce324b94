package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seantiz/prophet/internal/model"
)

// Compile-time interface satisfaction check.
var _ Broker = (*Redis)(nil)

// RedisConfig holds connection settings for the Redis broker.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	QueueKey  string
	ResultTTL time.Duration
}

// Redis implements Broker on a Redis server: one hash per job record and a
// list of pending job ids consumed with BRPOP so each worker claims exactly
// one job at a time.
type Redis struct {
	client    *redis.Client
	queueKey  string
	resultTTL time.Duration
}

// NewRedis creates a Redis-backed broker.
func NewRedis(cfg RedisConfig) *Redis {
	if cfg.QueueKey == "" {
		cfg.QueueKey = "prophet:jobs:pending"
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Hour
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		queueKey:  cfg.QueueKey,
		resultTTL: cfg.ResultTTL,
	}
}

func (r *Redis) jobKey(id string) string {
	return fmt.Sprintf("prophet:job:%s", id)
}

func (r *Redis) Enqueue(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	key := r.jobKey(job.ID)
	if err := r.client.HSet(ctx, key,
		"data", string(data),
		"state", job.State,
		"created_at", job.CreatedAt.Unix(),
	).Err(); err != nil {
		return fmt.Errorf("store job record: %w", wrapConnErr(err))
	}

	if err := r.client.LPush(ctx, r.queueKey, job.ID).Err(); err != nil {
		return fmt.Errorf("push pending job: %w", wrapConnErr(err))
	}
	return nil
}

func (r *Redis) Dequeue(ctx context.Context, timeout time.Duration) (*model.Job, bool, error) {
	// BRPOP pairs with LPUSH for FIFO delivery.
	result, err := r.client.BRPop(ctx, timeout, r.queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pop pending job: %w", wrapConnErr(err))
	}

	// result[0] is the queue key, result[1] the job id.
	job, err := r.GetJob(ctx, result[1])
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

func (r *Redis) GetJob(ctx context.Context, id string) (*model.Job, error) {
	data, err := r.client.HGet(ctx, r.jobKey(id), "data").Result()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job record: %w", wrapConnErr(err))
	}

	var job model.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

func (r *Redis) SetState(ctx context.Context, id, state string) error {
	return r.update(ctx, id, func(job *model.Job) error {
		return transitionJob(job, state)
	}, 0)
}

func (r *Redis) SetProgress(ctx context.Context, id string, p model.Progress) error {
	return r.update(ctx, id, func(job *model.Job) error {
		if err := transitionJob(job, model.StateProgress); err != nil {
			return err
		}
		job.Progress = clampProgress(job.Progress, p)
		return nil
	}, 0)
}

func (r *Redis) SetResult(ctx context.Context, id, state string, res *model.Result) error {
	return r.update(ctx, id, func(job *model.Job) error {
		if err := transitionJob(job, state); err != nil {
			return err
		}
		job.Result = res
		expires := time.Now().UTC().Add(r.resultTTL)
		job.ExpiresAt = &expires
		return nil
	}, r.resultTTL)
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrBrokerUnavailable, err)
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// update applies mutate to the stored job record and writes it back. Only the
// worker that dequeued a job mutates it, so a plain read-modify-write is
// sufficient. A non-zero ttl schedules the record for expiry.
func (r *Redis) update(ctx context.Context, id string, mutate func(*model.Job) error, ttl time.Duration) error {
	job, err := r.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if err := mutate(job); err != nil {
		return err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	key := r.jobKey(id)
	if err := r.client.HSet(ctx, key, "data", string(data), "state", job.State).Err(); err != nil {
		return fmt.Errorf("update job record: %w", wrapConnErr(err))
	}
	if ttl > 0 {
		if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("expire job record: %w", wrapConnErr(err))
		}
	}
	return nil
}

func transitionJob(job *model.Job, state string) error {
	if !model.ValidTransition(job.State, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.State, state)
	}
	job.State = state
	return nil
}

// wrapConnErr tags connection-level failures as broker unavailability so the
// API layer can distinguish them from per-job errors.
func wrapConnErr(err error) error {
	if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", model.ErrBrokerUnavailable, err)
}
