package repository

import (
	"context"

	"github.com/user/doorplate-crawler/internal/entity"
)

// BatchRepository defines the contract for the crawl batch log.
type BatchRepository interface {
	// Start opens a batch in the running state and returns its id.
	Start(ctx context.Context, trigger string) (int64, error)
	// Finish closes a batch with its final status and record total.
	Finish(ctx context.Context, id int64, status entity.BatchStatus, records int, errMsg string) error
	// Recent lists the latest batches, newest first.
	Recent(ctx context.Context, limit int) ([]*entity.Batch, error)
}
