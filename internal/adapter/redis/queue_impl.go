package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/doorplate-crawler/internal/entity"
	"github.com/user/doorplate-crawler/internal/repository"
)

const (
	jobQueueKey     = "doorplate:jobs:queue"
	jobStatusPrefix = "doorplate:jobs:status:"

	// JobStatusTTL is how long a job's status stays queryable.
	JobStatusTTL = 48 * time.Hour
)

// QueueRepoImpl provides a concrete implementation for the JobQueueRepository
// and JobStatusRepository interfaces using a Redis list and string keys.
type QueueRepoImpl struct {
	client *redis.Client
}

// NewQueueRepo creates a new instance of QueueRepoImpl.
func NewQueueRepo(client *redis.Client) *QueueRepoImpl {
	return &QueueRepoImpl{client: client}
}

// Push adds a job to the left side of the Redis list (acting as a queue).
func (r *QueueRepoImpl) Push(ctx context.Context, job *entity.BatchJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	return r.client.LPush(ctx, jobQueueKey, payload).Err()
}

// Pop removes and returns a job from the right side of the Redis list.
// An empty queue yields a nil job and no error.
func (r *QueueRepoImpl) Pop(ctx context.Context) (*entity.BatchJob, error) {
	payload, err := r.client.RPop(ctx, jobQueueKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var job entity.BatchJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("failed to decode queued job: %w", err)
	}
	return &job, nil
}

// Size returns the current number of items in the queue.
func (r *QueueRepoImpl) Size(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, jobQueueKey).Result()
}

// SaveStatus stores a job's status, refreshing its expiry.
func (r *QueueRepoImpl) SaveStatus(ctx context.Context, state *entity.JobState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, statusKey(state.ID), payload, JobStatusTTL).Err()
}

// GetStatus returns repository.ErrNotFound for unknown or expired jobs.
func (r *QueueRepoImpl) GetStatus(ctx context.Context, id string) (*entity.JobState, error) {
	payload, err := r.client.Get(ctx, statusKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var state entity.JobState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func statusKey(id string) string {
	return jobStatusPrefix + id
}
