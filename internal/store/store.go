// Package store persists evaluation records to Postgres so batch history
// survives restarts. The store is optional at runtime.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sellerforge/listing-checker/internal/decision"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	cfg.MaxConns = 5
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the evaluation-record table if needed.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS evaluation_records (
			id          BIGSERIAL PRIMARY KEY,
			batch_id    TEXT NOT NULL,
			evaluated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			country     TEXT NOT NULL,
			row_position INT NOT NULL,
			asin        TEXT NOT NULL,
			sku         TEXT NOT NULL,
			decision    TEXT NOT NULL,
			reason      TEXT NOT NULL,
			payload     JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_evaluation_records_batch
			ON evaluation_records (batch_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// InsertRecord archives one evaluation record under a batch run ID.
func (s *Store) InsertRecord(ctx context.Context, batchID string, rec decision.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO evaluation_records
			(batch_id, country, row_position, asin, sku, decision, reason, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		batchID, rec.Country, rec.Row, rec.ASIN, rec.SKU,
		string(rec.Decision), string(rec.Reason), payload)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// InsertBatch archives all records of one run.
func (s *Store) InsertBatch(ctx context.Context, batchID string, records []decision.Record) error {
	for _, rec := range records {
		if err := s.InsertRecord(ctx, batchID, rec); err != nil {
			return err
		}
	}
	return nil
}

// ListRecords returns the archived records of one batch run in insertion
// order.
func (s *Store) ListRecords(ctx context.Context, batchID string) ([]decision.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT payload FROM evaluation_records
		WHERE batch_id = $1
		ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []decision.Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		var rec decision.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return records, nil
}

// CountByDecision summarizes one batch run from the archive.
func (s *Store) CountByDecision(ctx context.Context, batchID string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT decision, COUNT(*) FROM evaluation_records
		WHERE batch_id = $1
		GROUP BY decision`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var d string
		var n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[d] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read counts: %w", err)
	}
	return counts, nil
}
