package repository

import (
	"context"

	"github.com/user/doorplate-crawler/internal/entity"
)

// JobQueueRepository defines the interface for a FIFO queue of batch jobs.
type JobQueueRepository interface {
	// Push adds a job to the end of the queue.
	Push(ctx context.Context, job *entity.BatchJob) error
	// Pop removes and returns the job at the front of the queue, or nil when
	// the queue is empty.
	Pop(ctx context.Context) (*entity.BatchJob, error)
	// Size returns the current number of queued jobs.
	Size(ctx context.Context) (int64, error)
}

// JobStatusRepository stores the status of submitted jobs.
type JobStatusRepository interface {
	SaveStatus(ctx context.Context, state *entity.JobState) error
	// GetStatus returns ErrNotFound for unknown or expired jobs.
	GetStatus(ctx context.Context, id string) (*entity.JobState, error)
}
