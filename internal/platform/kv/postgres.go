package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/trialbalance/internal/platform/db"
)

// PostgresStore keeps the latest snapshot per key in kv_snapshots and
// appends every write to kv_snapshot_history.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps a connection pool. The schema is created by db.Migrate.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get loads the latest snapshot stored at key.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT value FROM kv_snapshots WHERE key = $1`
	var value []byte
	if err := s.pool.QueryRow(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kv: postgres get %s: %w", key, err)
	}
	return value, nil
}

// Set upserts the snapshot and records it in the history table.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	const upsert = `
INSERT INTO kv_snapshots (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	const history = `INSERT INTO kv_snapshot_history (key, value) VALUES ($1, $2)`

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsert, key, value); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, history, key, value)
		return err
	})
	if err != nil {
		return fmt.Errorf("kv: postgres set %s: %w", key, err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
