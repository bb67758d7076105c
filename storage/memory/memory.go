// Package memory is an in-process csrf.Storage backed by a ristretto cache.
//
// It is the default storage of the csrf package. Tokens vanish on restart and
// are not shared between instances; use the redis, natskv or postgres
// packages for that.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// ErrDropped is returned when the cache refuses a write under contention.
var ErrDropped = errors.New("memory: set dropped by cache")

const (
	defaultMaxEntries  = 1 << 20
	counterMultiplier  = 10
	defaultBufferItems = 64
)

type Config struct {
	// MaxEntries bounds the number of live tokens. Defaults to 1<<20.
	MaxEntries int64
}

// Storage implements csrf.Storage.
type Storage struct {
	cache *ristretto.Cache[string, []byte]
}

// New creates an empty Storage.
func New(cfg Config) (*Storage, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        cfg.MaxEntries * counterMultiplier,
		MaxCost:            cfg.MaxEntries,
		BufferItems:        defaultBufferItems,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: create cache: %w", err)
	}
	return &Storage{cache: cache}, nil
}

func (s *Storage) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores val under key. A zero exp keeps the entry until evicted.
func (s *Storage) Set(_ context.Context, key string, val []byte, exp time.Duration) error {
	v := make([]byte, len(val))
	copy(v, val)
	if !s.cache.SetWithTTL(key, v, 1, exp) {
		return ErrDropped
	}
	// make the write visible to the next Get
	s.cache.Wait()
	return nil
}

func (s *Storage) Delete(_ context.Context, key string) error {
	s.cache.Del(key)
	return nil
}

// Close stops the cache's background goroutines.
func (s *Storage) Close() error {
	s.cache.Close()
	return nil
}
