package usecase

import (
	"context"
	"log/slog"

	"github.com/user/doorplate-crawler/internal/entity"
	"github.com/user/doorplate-crawler/internal/repository"
)

// recordSink adapts the record repository to the engine's persistence hook.
type recordSink struct {
	records repository.RecordRepository
}

func (s recordSink) SaveRecords(ctx context.Context, batchID int64, city, district string, records []entity.RawRecord) error {
	n, err := s.records.SaveRecords(ctx, batchID, city, district, records)
	if err != nil {
		return err
	}
	slog.Info("Records stored", "batch_id", batchID, "city", city, "district", district, "records", n)
	return nil
}

func (s recordSink) SaveDistrictResult(ctx context.Context, result entity.DistrictResult) error {
	return s.records.SaveDistrictResult(ctx, result)
}
