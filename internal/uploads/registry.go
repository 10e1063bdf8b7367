package uploads

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/postgres"
)

// Registry persists upload records.
type Registry interface {
	Insert(ctx context.Context, rec *Record) error
	List(ctx context.Context, limit, offset int) ([]Record, error)
}

const schema = `CREATE TABLE IF NOT EXISTS uploads (
	key           TEXT PRIMARY KEY,
	url           TEXT NOT NULL,
	original_name TEXT NOT NULL,
	content_type  TEXT NOT NULL,
	size          BIGINT NOT NULL,
	request_id    TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresRegistry keeps records in the uploads table.
type PostgresRegistry struct {
	db *postgres.DB
}

func NewPostgresRegistry(db *postgres.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

// EnsureSchema creates the uploads table when it does not exist.
func (r *PostgresRegistry) EnsureSchema(ctx context.Context) error {
	return r.db.Migrate(ctx, schema)
}

func (r *PostgresRegistry) Insert(ctx context.Context, rec *Record) error {
	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO uploads (key, url, original_name, content_type, size, request_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
			rec.Key, rec.URL, rec.OriginalName, rec.ContentType, rec.Size, nullableString(rec.RequestID),
		).Scan(&rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting upload %s: %w", rec.Key, err)
		}
		return nil
	})
}

func (r *PostgresRegistry) List(ctx context.Context, limit, offset int) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, url, original_name, content_type, size, COALESCE(request_id, ''), created_at
		FROM uploads ORDER BY created_at DESC, key LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing uploads: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Key, &rec.URL, &rec.OriginalName, &rec.ContentType, &rec.Size, &rec.RequestID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning upload row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating upload rows: %w", err)
	}
	return records, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
