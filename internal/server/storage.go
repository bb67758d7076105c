package server

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/JeanGrijp/csrfguard/csrf"
	"github.com/JeanGrijp/csrfguard/internal/config"
	"github.com/JeanGrijp/csrfguard/storage/memory"
	"github.com/JeanGrijp/csrfguard/storage/natskv"
	"github.com/JeanGrijp/csrfguard/storage/postgres"
	"github.com/JeanGrijp/csrfguard/storage/redis"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openStorage builds the configured backend. The returned closers release
// its connections and must be closed in order.
func openStorage(ctx context.Context, cfg *config.Config) (csrf.Storage, []io.Closer, error) {
	sc := cfg.Storage
	switch sc.Backend {
	case "redis":
		st := redis.New(redis.Config{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			PoolSize: sc.Redis.PoolSize,
			Prefix:   sc.Redis.Prefix,
		})
		if err := st.Ping(ctx); err != nil {
			_ = st.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return st, []io.Closer{st}, nil

	case "nats":
		conn, err := nats.Connect(sc.NATS.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("nats connect: %w", err)
		}
		st, err := natskv.New(conn, natskv.Config{Bucket: sc.NATS.Bucket})
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		return st, []io.Closer{closerFunc(func() error { conn.Close(); return nil })}, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, sc.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		st := postgres.New(pool, postgres.Config{Table: sc.Postgres.Table})
		if err := st.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return st, []io.Closer{closerFunc(func() error { pool.Close(); return nil })}, nil

	default:
		st, err := memory.New(memory.Config{MaxEntries: sc.Memory.MaxEntries})
		if err != nil {
			return nil, nil, err
		}
		return st, []io.Closer{st}, nil
	}
}
