package csrf

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// entry is what the guard writes to Storage or into the session.
// Token is only filled in session mode, where the key is fixed.
type entry struct {
	Token     string `msgpack:"t,omitempty"`
	ExpiresAt int64  `msgpack:"e"`
}

type tokenState int

const (
	tokenMissing tokenState = iota
	tokenMismatch
	tokenLive
)

func encodeEntry(e entry) ([]byte, error) {
	b, err := msgpack.Marshal(&e)
	if err != nil {
		return nil, fmt.Errorf("csrf: encode entry: %w", err)
	}
	return b, nil
}

func decodeEntry(b []byte) (entry, bool) {
	var e entry
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return entry{}, false
	}
	return e, true
}

// lookup reports whether tok is a live token for this client context.
func (p *Protector) lookup(ctx context.Context, sess Session, tok string) (tokenState, error) {
	now := p.now()

	if sess != nil {
		raw, ok := sess.Get(p.cfg.SessionKey)
		if !ok {
			return tokenMissing, nil
		}
		e, ok := decodeEntry(raw)
		if !ok || e.Token == "" || now.UnixMilli() >= e.ExpiresAt {
			sess.Delete(p.cfg.SessionKey)
			return tokenMissing, nil
		}
		if !compareTokens(e.Token, tok) {
			return tokenMismatch, nil
		}
		return tokenLive, nil
	}

	raw, err := p.cfg.Storage.Get(ctx, tok)
	if err != nil {
		return tokenMissing, fmt.Errorf("csrf: storage get: %w", err)
	}
	if raw == nil {
		return tokenMissing, nil
	}
	e, ok := decodeEntry(raw)
	if !ok || now.UnixMilli() >= e.ExpiresAt {
		// expired entries are only noticed here
		if err := p.cfg.Storage.Delete(ctx, tok); err != nil {
			return tokenMissing, fmt.Errorf("csrf: storage delete: %w", err)
		}
		return tokenMissing, nil
	}
	return tokenLive, nil
}

// sessionToken returns the live token held by the session, if any.
func (p *Protector) sessionToken(sess Session) (string, bool) {
	raw, ok := sess.Get(p.cfg.SessionKey)
	if !ok {
		return "", false
	}
	e, ok := decodeEntry(raw)
	if !ok || e.Token == "" || p.now().UnixMilli() >= e.ExpiresAt {
		return "", false
	}
	return e.Token, true
}

// persist creates tok or pushes its expiry forward by IdleTimeout.
func (p *Protector) persist(ctx context.Context, sess Session, tok string) error {
	e := entry{ExpiresAt: p.now().Add(p.cfg.IdleTimeout).UnixMilli()}

	if sess != nil {
		e.Token = tok
		b, err := encodeEntry(e)
		if err != nil {
			return err
		}
		sess.Set(p.cfg.SessionKey, b)
		return nil
	}

	b, err := encodeEntry(e)
	if err != nil {
		return err
	}
	if err := p.cfg.Storage.Set(ctx, tok, b, p.cfg.IdleTimeout); err != nil {
		return fmt.Errorf("csrf: storage set: %w", err)
	}
	return nil
}

func (p *Protector) remove(ctx context.Context, sess Session, tok string) error {
	if sess != nil {
		sess.Delete(p.cfg.SessionKey)
		return nil
	}
	if tok == "" {
		return nil
	}
	if err := p.cfg.Storage.Delete(ctx, tok); err != nil {
		return fmt.Errorf("csrf: storage delete: %w", err)
	}
	return nil
}

func compareTokens(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// expiry returns the cookie lifetime for a freshly persisted token.
func (p *Protector) expiry() (maxAge int, expires time.Time) {
	if p.cfg.CookieSessionOnly {
		return 0, time.Time{}
	}
	return int(p.cfg.IdleTimeout / time.Second), p.now().Add(p.cfg.IdleTimeout)
}
