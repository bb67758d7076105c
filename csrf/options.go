package csrf

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JeanGrijp/csrfguard/storage/memory"
)

// Defaults applied by New when the matching Config field is empty.
const (
	DefaultCookieName  = "csrf_token"
	DefaultHeaderName  = "X-CSRF-Token"
	DefaultKeyLookup   = "header:" + DefaultHeaderName
	DefaultSessionKey  = "csrf_token"
	DefaultIdleTimeout = time.Hour
)

type Config struct {
	// Next, when it returns true, skips the middleware for the request.
	Next func(r *http.Request) bool

	// Cookie
	CookieName        string
	CookiePath        string
	CookieDomain      string
	CookieSecure      bool
	CookieHTTPOnly    bool
	CookieSameSite    http.SameSite
	CookieSessionOnly bool // no Max-Age/Expires, cookie dies with the browser session

	// Token transport. KeyLookup has the form "<source>:<key>" where source
	// is one of header, form, query, param or cookie. Extractor wins over
	// KeyLookup when both are set.
	KeyLookup string
	Extractor Extractor

	// IdleTimeout is how long a token stays valid without being used.
	// Every accepted request pushes the expiry forward.
	IdleTimeout time.Duration

	// KeyGenerator creates new tokens. Defaults to uuid.NewString.
	KeyGenerator func() string

	// ErrorHandler receives every validation failure.
	ErrorHandler ErrorHandler

	// SingleUseToken drops a token right after it validates a request.
	SingleUseToken bool

	// Storage keeps issued tokens. Ignored when Session is set.
	Storage Storage

	// Session switches to the synchronizer token pattern: the token lives in
	// the user's session under SessionKey.
	Session    SessionStore
	SessionKey string

	// TrustedOrigins lists origins allowed to send unsafe requests besides
	// the request host, e.g. "https://app.example.com" or
	// "https://*.example.com".
	TrustedOrigins []string

	// TrustForwardedProto makes X-Forwarded-Proto count when deciding
	// whether the request came over HTTPS.
	TrustForwardedProto bool

	Logger  *zap.Logger
	Metrics *Metrics
}

type Protector struct {
	cfg     Config
	origins trustedOrigins
	now     func() time.Time

	// cookieExtractor is true when the extractor reads the CSRF cookie
	// itself; the double-submit comparison is then meaningless.
	cookieExtractor bool

	// owned is the default storage New created, released by Close.
	owned io.Closer
}

// New builds a Protector from cfg, filling in defaults. When cfg carries
// neither Storage nor Session an in-memory store is created; call Close to
// stop it once the Protector is no longer used.
//
// Params:
// - cfg: middleware configuration; zero values select the defaults.
//
// Returns:
//   - the Protector, or an error when KeyLookup or a trusted origin is
//     malformed, or when the default storage cannot be created.
func New(cfg Config) (*Protector, error) {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	// modern web security: SameSite=Lax is a good baseline
	if cfg.CookieSameSite == 0 {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}
	if cfg.KeyLookup == "" {
		cfg.KeyLookup = DefaultKeyLookup
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = uuid.NewString
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = DefaultErrorHandler
	}
	if cfg.SessionKey == "" {
		cfg.SessionKey = DefaultSessionKey
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	p := &Protector{now: time.Now}

	if cfg.Extractor == nil {
		source, key, err := parseKeyLookup(cfg.KeyLookup)
		if err != nil {
			return nil, err
		}
		cfg.Extractor = extractorFor(source, key)
		p.cookieExtractor = source == sourceCookie && key == cfg.CookieName
	}

	if cfg.Session == nil && cfg.Storage == nil {
		st, err := memory.New(memory.Config{})
		if err != nil {
			return nil, fmt.Errorf("csrf: default storage: %w", err)
		}
		cfg.Storage = st
		p.owned = st
	}

	origins, err := parseTrustedOrigins(cfg.TrustedOrigins)
	if err != nil {
		return nil, err
	}

	p.cfg = cfg
	p.origins = origins
	return p, nil
}

// Close releases the in-memory storage New created when Config.Storage was
// nil. Storage supplied by the caller is left open.
func (p *Protector) Close() error {
	if p.owned == nil {
		return nil
	}
	err := p.owned.Close()
	p.owned = nil
	return err
}
