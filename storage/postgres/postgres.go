// Package postgres implements csrf.Storage on a PostgreSQL table through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTable holds the tokens unless Config.Table says otherwise.
const DefaultTable = "csrf_tokens"

type Config struct {
	Table string
}

// Storage implements csrf.Storage.
type Storage struct {
	pool  *pgxpool.Pool
	table string
	now   func() time.Time
}

// New wraps pool. Call Migrate once before first use.
func New(pool *pgxpool.Pool, cfg Config) *Storage {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	return &Storage{pool: pool, table: cfg.Table, now: time.Now}
}

// Migrate creates the token table and its expiry index. It is idempotent.
func (s *Storage) Migrate(ctx context.Context) error {
	table := pgx.Identifier{s.table}.Sanitize()
	index := pgx.Identifier{s.table + "_expires_at_idx"}.Sanitize()
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			expires_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS ` + index + ` ON ` + table + ` (expires_at)`,
	}
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	q := `SELECT value, expires_at FROM ` + pgx.Identifier{s.table}.Sanitize() + ` WHERE key = $1`

	var (
		val       []byte
		expiresAt *time.Time
	)
	err := s.pool.QueryRow(ctx, q, key).Scan(&val, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get: %w", err)
	}
	if expiresAt != nil && !s.now().Before(*expiresAt) {
		if err := s.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return val, nil
}

func (s *Storage) Set(ctx context.Context, key string, val []byte, exp time.Duration) error {
	q := `INSERT INTO ` + pgx.Identifier{s.table}.Sanitize() + ` (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`

	var expiresAt *time.Time
	if exp > 0 {
		t := s.now().Add(exp)
		expiresAt = &t
	}
	if _, err := s.pool.Exec(ctx, q, key, val, expiresAt); err != nil {
		return fmt.Errorf("postgres: set: %w", err)
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	q := `DELETE FROM ` + pgx.Identifier{s.table}.Sanitize() + ` WHERE key = $1`
	if _, err := s.pool.Exec(ctx, q, key); err != nil {
		return fmt.Errorf("postgres: delete: %w", err)
	}
	return nil
}

// DeleteExpired removes rows whose expiry has passed and reports how many.
// The guard never needs it; it exists for periodic cleanup jobs.
func (s *Storage) DeleteExpired(ctx context.Context) (int64, error) {
	q := `DELETE FROM ` + pgx.Identifier{s.table}.Sanitize() + ` WHERE expires_at IS NOT NULL AND expires_at <= $1`
	tag, err := s.pool.Exec(ctx, q, s.now())
	if err != nil {
		return 0, fmt.Errorf("postgres: delete expired: %w", err)
	}
	return tag.RowsAffected(), nil
}
