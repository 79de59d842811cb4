package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/doorplate-crawler/internal/entity"
)

// RecipientRepoImpl provides a concrete implementation for the RecipientRepository interface using PostgreSQL.
type RecipientRepoImpl struct {
	db *pgxpool.Pool
}

func NewRecipientRepo(db *pgxpool.Pool) *RecipientRepoImpl {
	return &RecipientRepoImpl{db: db}
}

// ListActive returns every recipient flagged active.
func (r *RecipientRepoImpl) ListActive(ctx context.Context) ([]entity.Recipient, error) {
	rows, err := r.db.Query(ctx, `SELECT email, COALESCE(name, ''), is_active FROM notification_recipients WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.Recipient
	for rows.Next() {
		var rc entity.Recipient
		if err := rows.Scan(&rc.Email, &rc.Name, &rc.IsActive); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// Add inserts a recipient, re-activating it when the address already exists.
func (r *RecipientRepoImpl) Add(ctx context.Context, rc entity.Recipient) error {
	query := `
		INSERT INTO notification_recipients (email, name, is_active)
		VALUES ($1, NULLIF($2, ''), TRUE)
		ON CONFLICT (email) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, notification_recipients.name),
			is_active = TRUE;
	`
	_, err := r.db.Exec(ctx, query, rc.Email, rc.Name)
	return err
}
