package webhook

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrRecordNotFound = errors.New("webhook record not found")

type SQLRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

type InsertParams struct {
	Provider  string
	Event     string
	Signature string
	RawBody   []byte
}

func (r *SQLRepository) Insert(ctx context.Context, p InsertParams) (*Record, error) {
	rec := &Record{}
	err := r.db.GetContext(ctx, rec, `
		INSERT INTO webhook_records (provider, event, signature, raw_body)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, p.Provider, p.Event, p.Signature, p.RawBody)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *SQLRepository) GetByID(ctx context.Context, id int) (*Record, error) {
	rec := &Record{}
	err := r.db.GetContext(ctx, rec, `SELECT * FROM webhook_records WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *SQLRepository) MarkProcessed(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_records
		SET processed = TRUE, processed_at = NOW(), error_message = NULL, updated_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

// MarkFailed stores the failure for operator inspection and bumps the retry
// counter. The record itself stays; re-delivery and manual replay depend on
// it.
func (r *SQLRepository) MarkFailed(ctx context.Context, id int, errorMessage string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_records
		SET error_message = $2, retries = retries + 1, updated_at = NOW()
		WHERE id = $1
	`, id, errorMessage)
	return err
}

func (r *SQLRepository) ListUnprocessed(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	records := []Record{}
	err := r.db.SelectContext(ctx, &records, `
		SELECT * FROM webhook_records
		WHERE processed = FALSE
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	return records, err
}
