package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/user/doorplate-crawler/internal/catalog"
	"github.com/user/doorplate-crawler/internal/entity"
	"github.com/user/doorplate-crawler/internal/repository"
	"github.com/user/doorplate-crawler/pkg/metrics"
)

var ErrJobNotFound = errors.New("job not found")

// JobManager defines the interface for asynchronous batch jobs.
type JobManager interface {
	Submit(ctx context.Context, job *entity.BatchJob) (string, error)
	Status(ctx context.Context, id string) (*entity.JobState, error)
	// ProcessNext runs one queued job and reports whether there was one.
	ProcessNext(ctx context.Context) (bool, error)
	// Run drains the queue every interval until ctx is done.
	Run(ctx context.Context, interval time.Duration) error
}

type jobUseCase struct {
	catalog  *catalog.Catalog
	queue    repository.JobQueueRepository
	statuses repository.JobStatusRepository
	crawler  Crawler
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewJobManager creates a new JobManager use case.
func NewJobManager(
	cat *catalog.Catalog,
	queue repository.JobQueueRepository,
	statuses repository.JobStatusRepository,
	crawler Crawler,
	m *metrics.Metrics,
) JobManager {
	return &jobUseCase{
		catalog:  cat,
		queue:    queue,
		statuses: statuses,
		crawler:  crawler,
		metrics:  m,
		now:      time.Now,
	}
}

// Submit validates and enqueues a job, returning its id.
func (uc *jobUseCase) Submit(ctx context.Context, job *entity.BatchJob) (string, error) {
	if _, _, err := ValidateRequest(uc.catalog, jobRequest(job)); err != nil {
		return "", err
	}

	job.ID = uuid.NewString()
	job.SubmittedAt = uc.now()

	if err := uc.saveState(ctx, &entity.JobState{ID: job.ID, Status: entity.JobStatusPending}); err != nil {
		return "", fmt.Errorf("failed to record job %s: %w", job.ID, err)
	}
	if err := uc.queue.Push(ctx, job); err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	uc.refreshQueueGauge(ctx)

	slog.Info("Job submitted", "job_id", job.ID, "city_code", job.CityCode, "start_date", job.Range.Start, "end_date", job.Range.End)
	return job.ID, nil
}

func (uc *jobUseCase) Status(ctx context.Context, id string) (*entity.JobState, error) {
	state, err := uc.statuses.GetStatus(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return state, err
}

// ProcessNext pops one job and runs it. An empty queue is a normal state.
func (uc *jobUseCase) ProcessNext(ctx context.Context) (bool, error) {
	job, err := uc.queue.Pop(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to pop job from queue: %w", err)
	}
	if job == nil {
		return false, nil
	}
	uc.refreshQueueGauge(ctx)

	slog.Info("Processing job from queue", "job_id", job.ID)
	if err := uc.saveState(ctx, &entity.JobState{ID: job.ID, Status: entity.JobStatusRunning}); err != nil {
		slog.Warn("Failed to mark job running", "job_id", job.ID, "error", err)
	}

	state := &entity.JobState{ID: job.ID}
	report, err := uc.crawler.Crawl(ctx, jobRequest(job))
	switch {
	case err != nil:
		state.Status = entity.JobStatusFailed
		state.ErrorMessage = err.Error()
	case !report.Outcome.Success:
		state.Status = entity.JobStatusFailed
		state.BatchID = report.BatchID
		state.ErrorMessage = report.Outcome.ErrorMessage
	default:
		state.Status = entity.JobStatusCompleted
		state.BatchID = report.BatchID
		state.TotalCount = report.Outcome.TotalCount()
	}
	finished := uc.now()
	state.FinishedAt = &finished

	if err := uc.saveState(context.WithoutCancel(ctx), state); err != nil {
		return true, fmt.Errorf("failed to record result of job %s: %w", job.ID, err)
	}
	slog.Info("Job finished", "job_id", job.ID, "status", state.Status, "records", state.TotalCount)
	return true, nil
}

func (uc *jobUseCase) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for {
			ran, err := uc.ProcessNext(ctx)
			if err != nil {
				slog.Error("Job worker error", "error", err)
				break
			}
			if !ran || ctx.Err() != nil {
				break
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (uc *jobUseCase) saveState(ctx context.Context, state *entity.JobState) error {
	state.UpdatedAt = uc.now()
	return uc.statuses.SaveStatus(ctx, state)
}

func (uc *jobUseCase) refreshQueueGauge(ctx context.Context) {
	if n, err := uc.queue.Size(ctx); err == nil {
		uc.metrics.SetJobsInQueue(n)
	}
}

func jobRequest(job *entity.BatchJob) CrawlRequest {
	return CrawlRequest{
		CityCode:  job.CityCode,
		Range:     job.Range,
		EditKind:  job.EditKind,
		Districts: job.Districts,
		SaveToDB:  job.SaveToDB,
		Trigger:   "job",
	}
}
