// Package natskv implements csrf.Storage on a NATS JetStream Key-Value bucket.
//
// KV buckets only support a bucket-wide TTL, so each value is wrapped with
// its own expiry and checked when read. Keys are base64url encoded since
// tokens may contain characters NATS subjects reject.
package natskv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultBucket is the bucket used when Config.Bucket is empty.
const DefaultBucket = "CSRF_TOKENS"

type Config struct {
	Bucket string
	// TTL is the bucket-wide upper bound on entry age. Zero means none.
	TTL      time.Duration
	Replicas int
}

type record struct {
	ExpiresAt int64  `msgpack:"e"` // unix millis, 0 = never
	Value     []byte `msgpack:"v"`
}

// Storage implements csrf.Storage.
type Storage struct {
	kv  nats.KeyValue
	now func() time.Time
}

// New opens the bucket described by conf, creating it when missing.
func New(conn *nats.Conn, conf Config) (*Storage, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	if conf.Bucket == "" {
		conf.Bucket = DefaultBucket
	}

	kv, err := js.KeyValue(conf.Bucket)
	switch {
	case errors.Is(err, nats.ErrBucketNotFound):
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      conf.Bucket,
			Description: "CSRF tokens",
			TTL:         conf.TTL,
			Replicas:    conf.Replicas,
		})
		if err != nil {
			return nil, fmt.Errorf("creating new KV bucket: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("opening KV bucket: %w", err)
	}

	return &Storage{kv: kv, now: time.Now}, nil
}

func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (s *Storage) Get(_ context.Context, key string) ([]byte, error) {
	k := encodeKey(key)
	e, err := s.kv.Get(k)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token from KV: %w", err)
	}

	var rec record
	if err := msgpack.Unmarshal(e.Value(), &rec); err != nil {
		// unreadable entries are treated as gone
		_ = s.kv.Delete(k)
		return nil, nil
	}
	if rec.ExpiresAt != 0 && s.now().UnixMilli() >= rec.ExpiresAt {
		if err := s.kv.Delete(k); err != nil {
			return nil, fmt.Errorf("deleting expired token from KV: %w", err)
		}
		return nil, nil
	}
	return rec.Value, nil
}

func (s *Storage) Set(_ context.Context, key string, val []byte, exp time.Duration) error {
	rec := record{Value: val}
	if exp > 0 {
		rec.ExpiresAt = s.now().Add(exp).UnixMilli()
	}
	b, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("encoding token record: %w", err)
	}
	if _, err := s.kv.Put(encodeKey(key), b); err != nil {
		return fmt.Errorf("writing token to KV: %w", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Storage) Delete(_ context.Context, key string) error {
	err := s.kv.Delete(encodeKey(key))
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("deleting token from KV: %w", err)
	}
	return nil
}
