package natskv_test

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	natsctr "github.com/testcontainers/testcontainers-go/modules/nats"

	"github.com/JeanGrijp/csrfguard/storage/natskv"
)

func setupNATS(t *testing.T) *nats.Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping NATS container test in short mode")
	}
	ctx := context.Background()
	ctr, err := natsctr.Run(ctx, "nats:latest")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, ctr.Terminate(ctx)) })

	url, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)
	conn, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

func TestStorage(t *testing.T) {
	conn := setupNATS(t)
	ctx := context.Background()

	t.Run("default bucket", func(t *testing.T) {
		s, err := natskv.New(conn, natskv.Config{})
		require.NoError(t, err)
		require.NotNil(t, s)

		// opening an existing bucket works too
		_, err = natskv.New(conn, natskv.Config{})
		require.NoError(t, err)
	})

	t.Run("set get delete", func(t *testing.T) {
		s, err := natskv.New(conn, natskv.Config{Bucket: "CSRF_SGD"})
		require.NoError(t, err)

		got, err := s.Get(ctx, "missing")
		require.NoError(t, err)
		require.Nil(t, got)

		// characters NATS keys reject are fine
		key := "tok*with>odd chars"
		require.NoError(t, s.Set(ctx, key, []byte("entry"), time.Minute))

		got, err = s.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, []byte("entry"), got)

		require.NoError(t, s.Delete(ctx, key))
		got, err = s.Get(ctx, key)
		require.NoError(t, err)
		require.Nil(t, got)

		require.NoError(t, s.Delete(ctx, key))
	})

	t.Run("expired entry reads as missing", func(t *testing.T) {
		s, err := natskv.New(conn, natskv.Config{Bucket: "CSRF_EXP"})
		require.NoError(t, err)

		require.NoError(t, s.Set(ctx, "tok", []byte("entry"), time.Millisecond))
		time.Sleep(5 * time.Millisecond)

		got, err := s.Get(ctx, "tok")
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("zero exp never expires", func(t *testing.T) {
		s, err := natskv.New(conn, natskv.Config{Bucket: "CSRF_NOEXP"})
		require.NoError(t, err)

		require.NoError(t, s.Set(ctx, "tok", []byte("entry"), 0))
		got, err := s.Get(ctx, "tok")
		require.NoError(t, err)
		require.Equal(t, []byte("entry"), got)
	})
}
