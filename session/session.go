// Package session is a small cookie-identified session store that implements
// csrf.SessionStore, for apps that want the synchronizer token pattern
// without bringing their own session middleware.
//
// Session data is a string-to-bytes map encoded with msgpack and kept in any
// csrf.Storage (memory, redis, natskv, postgres), keyed by a random ID that
// travels in an HTTP-only cookie.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/JeanGrijp/csrfguard/csrf"
)

const (
	DefaultCookieName  = "session_id"
	DefaultKeyPrefix   = "sess:"
	DefaultIdleTimeout = 24 * time.Hour
)

var ErrForeignSession = errors.New("session: session was not created by this store")

var _ csrf.SessionStore = (*Store)(nil)

type Config struct {
	CookieName     string
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	// IdleTimeout is pushed forward on every Save.
	IdleTimeout time.Duration

	// KeyPrefix namespaces session keys inside the shared Storage.
	KeyPrefix string
}

// Store loads and saves sessions.
type Store struct {
	storage csrf.Storage
	cfg     Config
}

// Session holds the values of one user session.
type Session struct {
	id        string
	data      map[string][]byte
	fresh     bool
	destroyed bool
}

func New(storage csrf.Storage, cfg Config) *Store {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.CookieSameSite == 0 {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	return &Store{storage: storage, cfg: cfg}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Fresh reports whether the session was created during this request.
func (s *Session) Fresh() bool { return s.fresh }

func (s *Session) Get(key string) ([]byte, bool) {
	v, ok := s.data[key]
	return v, ok
}

func (s *Session) Set(key string, val []byte) {
	s.data[key] = val
}

func (s *Session) Delete(key string) {
	delete(s.data, key)
}

// Load returns the session named by the request cookie, or a new empty one.
func (st *Store) Load(_ http.ResponseWriter, r *http.Request) (csrf.Session, error) {
	if c, err := r.Cookie(st.cfg.CookieName); err == nil && c.Value != "" {
		raw, err := st.storage.Get(r.Context(), st.cfg.KeyPrefix+c.Value)
		if err != nil {
			return nil, fmt.Errorf("session: load: %w", err)
		}
		if raw != nil {
			data := map[string][]byte{}
			if err := msgpack.Unmarshal(raw, &data); err == nil {
				return &Session{id: c.Value, data: data}, nil
			}
		}
	}
	return &Session{id: uuid.NewString(), data: map[string][]byte{}, fresh: true}, nil
}

// Save writes the session back and refreshes the cookie.
func (st *Store) Save(w http.ResponseWriter, r *http.Request, s csrf.Session) error {
	sess, ok := s.(*Session)
	if !ok {
		return ErrForeignSession
	}
	if sess.destroyed {
		return nil
	}

	b, err := msgpack.Marshal(sess.data)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := st.storage.Set(r.Context(), st.cfg.KeyPrefix+sess.id, b, st.cfg.IdleTimeout); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}

	http.SetCookie(w, st.cookie(sess.id, int(st.cfg.IdleTimeout/time.Second)))
	return nil
}

// Renew moves the session to a new ID, keeping its data. Call it after login
// so a session ID planted before authentication becomes useless.
func (st *Store) Renew(w http.ResponseWriter, r *http.Request, s csrf.Session) error {
	sess, ok := s.(*Session)
	if !ok {
		return ErrForeignSession
	}
	if err := st.storage.Delete(r.Context(), st.cfg.KeyPrefix+sess.id); err != nil {
		return fmt.Errorf("session: renew: %w", err)
	}
	sess.id = uuid.NewString()
	return st.Save(w, r, sess)
}

// Destroy deletes the session and expires its cookie.
func (st *Store) Destroy(w http.ResponseWriter, r *http.Request, s csrf.Session) error {
	sess, ok := s.(*Session)
	if !ok {
		return ErrForeignSession
	}
	if err := st.storage.Delete(r.Context(), st.cfg.KeyPrefix+sess.id); err != nil {
		return fmt.Errorf("session: destroy: %w", err)
	}
	sess.destroyed = true
	sess.data = map[string][]byte{}
	http.SetCookie(w, st.cookie("", -1))
	return nil
}

func (st *Store) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     st.cfg.CookieName,
		Value:    value,
		Path:     st.cfg.CookiePath,
		Domain:   st.cfg.CookieDomain,
		MaxAge:   maxAge,
		Secure:   st.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: st.cfg.CookieSameSite,
	}
}
