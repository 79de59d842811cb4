package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/doorplate-crawler/internal/entity"
)

const defaultSearchLimit = 100

// RecordRepoImpl provides a concrete implementation for the RecordRepository interface using PostgreSQL.
type RecordRepoImpl struct {
	db *pgxpool.Pool
}

// NewRecordRepo creates a new instance of RecordRepoImpl.
func NewRecordRepo(db *pgxpool.Pool) *RecordRepoImpl {
	return &RecordRepoImpl{db: db}
}

// SaveRecords inserts one district's records within a single transaction.
func (r *RecordRepoImpl) SaveRecords(ctx context.Context, batchID int64, city, district string, records []entity.RawRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return 0, err
		}
		batch.Queue(`INSERT INTO household_records
			(batch_id, city, district, full_address, edit_date, edit_type_code, edit_type_name, raw_data)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			nullableID(batchID), city, district, rec.Address, rec.Date, rec.EditTypeCode, entity.EditTypeName(rec.EditTypeCode), raw)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(records), nil
}

// SaveDistrictResult inserts the outcome of one district query.
func (r *RecordRepoImpl) SaveDistrictResult(ctx context.Context, res entity.DistrictResult) error {
	query := `
		INSERT INTO district_query_results
		(batch_id, city_name, district_code, district_name, record_count, status, error_message, queried_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NOW());
	`
	_, err := r.db.Exec(ctx, query,
		nullableID(res.BatchID),
		res.CityName,
		res.DistrictCode,
		res.DistrictName,
		res.RecordCount,
		string(res.Status),
		res.ErrorMessage,
	)
	return err
}

// Search returns stored records matching the filter, newest first.
func (r *RecordRepoImpl) Search(ctx context.Context, filter entity.RecordFilter) ([]*entity.StoredRecord, error) {
	query, args := buildSearchQuery(filter)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.StoredRecord
	for rows.Next() {
		var rec entity.StoredRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.BatchID,
			&rec.City,
			&rec.District,
			&rec.FullAddress,
			&rec.EditDate,
			&rec.EditTypeCode,
			&rec.EditTypeName,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func buildSearchQuery(f entity.RecordFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	add("city = $%d", f.City)
	add("district = $%d", f.District)
	add("edit_type_code = $%d", f.EditType)
	add("edit_date >= $%d", f.StartDate)
	add("edit_date <= $%d", f.EndDate)

	where := "TRUE"
	if len(conds) > 0 {
		where = strings.Join(conds, " AND ")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, COALESCE(batch_id, 0), city, district, full_address,
		       COALESCE(edit_date, ''), COALESCE(edit_type_code, ''), COALESCE(edit_type_name, ''), created_at
		FROM household_records
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d;
	`, where, len(args))
	return query, args
}

// nullableID stores batch id 0 (no batch log) as NULL.
func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
