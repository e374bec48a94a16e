// internal/store/postgres.go
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cythink/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const cacheTable = "cythink_cache"

const (
	sqlCreateCacheTable = `
        CREATE TABLE IF NOT EXISTS cythink_cache (
            fingerprint TEXT PRIMARY KEY,
            entry JSONB NOT NULL
        );
    `
	sqlSelectCache = `SELECT fingerprint, entry FROM cythink_cache;`
	sqlDeleteCache = `DELETE FROM cythink_cache;`
)

// PostgresStore keeps the cache in a PostgreSQL table so several machines can share it.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

var _ Persister = (*PostgresStore)(nil)

// NewPostgresStore verifies the connection and creates the cache table when needed.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateCacheTable); err != nil {
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}

	return &PostgresStore{
		pool: pool,
		log:  logger.Named("store.postgres"),
	}, nil
}

// Location names the table.
func (s *PostgresStore) Location() string {
	return "postgres table " + cacheTable
}

// Load reads every row of the cache table.
func (s *PostgresStore) Load(ctx context.Context) (map[string]schemas.CacheEntry, error) {
	rows, err := s.pool.Query(ctx, sqlSelectCache)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]schemas.CacheEntry)
	for rows.Next() {
		var (
			fingerprint string
			raw         []byte
		)
		if err := rows.Scan(&fingerprint, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan cache row: %w", err)
		}
		var entry schemas.CacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("failed to decode cache entry %s: %w", fingerprint, err)
		}
		entries[fingerprint] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return entries, nil
}

// Save replaces the table contents in a single transaction.
func (s *PostgresStore) Save(ctx context.Context, entries map[string]schemas.CacheEntry) error {
	rows := make([][]interface{}, 0, len(entries))
	for fingerprint, entry := range entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to encode cache entry %s: %w", fingerprint, err)
		}
		rows = append(rows, []interface{}{fingerprint, string(raw)})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, sqlDeleteCache); err != nil {
		return fmt.Errorf("failed to clear cache table: %w", err)
	}

	if len(rows) > 0 {
		copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{cacheTable}, []string{"fingerprint", "entry"}, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy cache entries: %w", err)
		}
		if int(copyCount) != len(rows) {
			return fmt.Errorf("mismatch in copied cache entries: expected %d, got %d", len(rows), copyCount)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
