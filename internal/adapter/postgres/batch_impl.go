package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/doorplate-crawler/internal/entity"
)

// BatchRepoImpl provides a concrete implementation for the BatchRepository interface using PostgreSQL.
type BatchRepoImpl struct {
	db *pgxpool.Pool
}

// NewBatchRepo creates a new instance of BatchRepoImpl.
func NewBatchRepo(db *pgxpool.Pool) *BatchRepoImpl {
	return &BatchRepoImpl{db: db}
}

// Start opens a running batch and returns its id.
func (r *BatchRepoImpl) Start(ctx context.Context, trigger string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO crawl_batches (trigger, started_at, status) VALUES ($1, NOW(), 'running') RETURNING id`,
		trigger,
	).Scan(&id)
	return id, err
}

// Finish stamps the end time, final status and record total of a batch.
func (r *BatchRepoImpl) Finish(ctx context.Context, id int64, status entity.BatchStatus, records int, errMsg string) error {
	query := `
		UPDATE crawl_batches
		SET finished_at = NOW(), records_fetched = $1, status = $2, error_message = NULLIF($3, '')
		WHERE id = $4;
	`
	_, err := r.db.Exec(ctx, query, records, string(status), errMsg, id)
	return err
}

// Recent lists the latest batches, newest first.
func (r *BatchRepoImpl) Recent(ctx context.Context, limit int) ([]*entity.Batch, error) {
	query := `
		SELECT id, trigger, started_at, finished_at, records_fetched, status, COALESCE(error_message, '')
		FROM crawl_batches
		ORDER BY started_at DESC
		LIMIT $1;
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []*entity.Batch
	for rows.Next() {
		var (
			b      entity.Batch
			status string
			ended  *time.Time
		)
		if err := rows.Scan(&b.ID, &b.Trigger, &b.StartedAt, &ended, &b.RecordsFetched, &status, &b.ErrorMessage); err != nil {
			return nil, err
		}
		b.Status = entity.BatchStatus(status)
		b.FinishedAt = ended
		batches = append(batches, &b)
	}
	return batches, rows.Err()
}
