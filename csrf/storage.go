package csrf

import (
	"context"
	"net/http"
	"time"
)

// Storage persists issued tokens keyed by the token value.
//
// Implementations must be safe for concurrent use and must not lock across
// keys. Get returns (nil, nil) when the key does not exist. The exp passed to
// Set is a hint for eviction; the guard checks expiry itself on read.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, exp time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Session is the per-request view of a user session.
type Session interface {
	Get(key string) ([]byte, bool)
	Set(key string, val []byte)
	Delete(key string)
}

// SessionStore loads and saves the session bound to a request.
type SessionStore interface {
	// Load returns the session for r, creating an empty one when the request
	// carries none.
	Load(w http.ResponseWriter, r *http.Request) (Session, error)

	// Save persists s and writes whatever the client needs to find it again.
	Save(w http.ResponseWriter, r *http.Request, s Session) error
}
