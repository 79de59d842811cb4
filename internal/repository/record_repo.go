package repository

import (
	"context"

	"github.com/user/doorplate-crawler/internal/entity"
)

// RecordRepository stores door plate records and per-district bookkeeping.
type RecordRepository interface {
	// SaveRecords stores one district's records in a single transaction and
	// returns how many were written.
	SaveRecords(ctx context.Context, batchID int64, city, district string, records []entity.RawRecord) (int, error)
	// SaveDistrictResult stores the outcome of one district query.
	SaveDistrictResult(ctx context.Context, result entity.DistrictResult) error
	// Search returns stored records matching the filter, newest first.
	Search(ctx context.Context, filter entity.RecordFilter) ([]*entity.StoredRecord, error)
}

// RecipientRepository manages notification recipients.
type RecipientRepository interface {
	ListActive(ctx context.Context) ([]entity.Recipient, error)
	Add(ctx context.Context, r entity.Recipient) error
}
