package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/KainCH/omniasylum-sub001/pkg/database"
	"github.com/KainCH/omniasylum-sub001/pkg/logging"
	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	partition  TEXT        NOT NULL,
	row_key    TEXT        NOT NULL,
	doc        JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (partition, row_key)
)`

// PostgresStore persists records in a single partition+row keyed table.
type PostgresStore struct {
	db     database.PostgresConn
	logger logging.Logger
}

// NewPostgresStore wraps an open connection and ensures the schema exists.
func NewPostgresStore(ctx context.Context, db database.PostgresConn, logger logging.Logger) (*PostgresStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure records schema: %w", err)
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

func (s *PostgresStore) Get(ctx context.Context, partition, row string) (models.Record, error) {
	var rec models.Record
	err := s.db.QueryRowContext(ctx,
		`SELECT partition, row_key, doc, updated_at FROM records WHERE partition = $1 AND row_key = $2`,
		partition, row,
	).Scan(&rec.Partition, &rec.Row, &rec.Doc, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Record{}, fmt.Errorf("%w: %s/%s", models.ErrNotFound, partition, row)
	}
	if err != nil {
		return models.Record{}, fmt.Errorf("get record %s/%s: %w", partition, row, err)
	}
	return rec, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rec models.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (partition, row_key, doc, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (partition, row_key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		rec.Partition, rec.Row, []byte(rec.Doc), rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert record %s/%s: %w", rec.Partition, rec.Row, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, partition string) ([]models.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT partition, row_key, doc, updated_at FROM records WHERE partition = $1 ORDER BY row_key`,
		partition,
	)
	if err != nil {
		return nil, fmt.Errorf("list partition %s: %w", partition, err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		var rec models.Record
		if err := rows.Scan(&rec.Partition, &rec.Row, &rec.Doc, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan record in %s: %w", partition, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partition %s: %w", partition, err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, partition, row string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE partition = $1 AND row_key = $2`, partition, row)
	if err != nil {
		return fmt.Errorf("delete record %s/%s: %w", partition, row, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s/%s", models.ErrNotFound, partition, row)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
