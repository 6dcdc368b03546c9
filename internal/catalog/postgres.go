package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads the catalog from PostgreSQL. Attributes live in a
// JSONB column so the set of distinguishing attributes can grow without
// schema changes.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS medicines (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			generic_name TEXT NOT NULL DEFAULT '',
			dosage_form TEXT NOT NULL DEFAULT '',
			main_use TEXT NOT NULL DEFAULT '',
			warnings TEXT NOT NULL DEFAULT '',
			attributes JSONB NOT NULL DEFAULT '{}'::jsonb,
			position INT NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_medicines_position ON medicines (position);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Records(ctx context.Context) ([]MedicineRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, generic_name, dosage_form, main_use, warnings, attributes
		 FROM medicines ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("query medicines: %w", err)
	}
	defer rows.Close()

	var records []MedicineRecord
	for rows.Next() {
		var r MedicineRecord
		var attrs []byte
		if err := rows.Scan(&r.ID, &r.Name, &r.GenericName, &r.DosageForm, &r.MainUse, &r.Warnings, &attrs); err != nil {
			return nil, fmt.Errorf("scan medicine row: %w", err)
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &r.Attributes); err != nil {
				return nil, fmt.Errorf("parse attributes for %s: %w", r.ID, err)
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate medicine rows: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyCatalog
	}

	return records, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
