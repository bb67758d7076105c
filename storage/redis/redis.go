// Package redis implements csrf.Storage on top of Redis, so tokens survive
// restarts and are shared by every instance behind a load balancer.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces token keys.
const DefaultPrefix = "csrf:"

type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
}

// Storage implements csrf.Storage.
type Storage struct {
	client redis.UniversalClient
	prefix string
	owned  bool
}

// New connects to the Redis server described by cfg.
func New(cfg Config) *Storage {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	s := NewFromClient(client, cfg.Prefix)
	s.owned = true
	return s
}

// NewFromClient wraps an existing client. Close leaves the client open.
func NewFromClient(client redis.UniversalClient, prefix string) *Storage {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Storage{client: client, prefix: prefix}
}

// Ping tests the Redis connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get: %w", err)
	}
	return b, nil
}

// Set stores val with a TTL of exp; zero keeps the key forever.
func (s *Storage) Set(ctx context.Context, key string, val []byte, exp time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+key, val, exp).Err(); err != nil {
		return fmt.Errorf("redis: set: %w", err)
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis: del: %w", err)
	}
	return nil
}

// Close closes the connection when the Storage created it.
func (s *Storage) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
