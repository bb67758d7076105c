package csrf

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Methods RFC 9110 defines as safe; everything else needs a token.
var safeMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// Protect wraps the given next http.Handler and enforces CSRF protection.
//
// Behavior:
//   - For safe methods (GET/HEAD/OPTIONS/TRACE): reuses the client's token when
//     it is still live, otherwise generates a new one.
//   - For every other method: checks Origin (or Referer over HTTPS when Origin
//     is absent), extracts the client token, compares it in constant time with
//     the cookie and then against storage or the session. Failures go to the
//     ErrorHandler and next is not called.
//   - In both cases the token's expiry is refreshed, the cookie is (re)set and
//     the token plus its Handler are injected into the request context.
//
// Params:
// - next: downstream handler to be executed after CSRF checks pass.
//
// Returns:
// - An http.Handler that performs the CSRF logic before delegating to next.
func (p *Protector) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := p.cfg

		if cfg.Next != nil && cfg.Next(r) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()

		var sess Session
		if cfg.Session != nil {
			s, err := cfg.Session.Load(w, r)
			if err != nil {
				p.fail(w, r, fmt.Errorf("csrf: session load: %w", err))
				return
			}
			sess = s
		}

		var token string
		if safeMethods[r.Method] {
			tok, err := p.existingToken(ctx, r, sess)
			if err != nil {
				p.fail(w, r, err)
				return
			}
			token = tok
		} else {
			tok, err := p.validate(ctx, w, r, sess)
			if err != nil {
				p.fail(w, r, err)
				return
			}
			if cfg.SingleUseToken {
				if err := p.remove(ctx, sess, tok); err != nil {
					p.fail(w, r, err)
					return
				}
			} else {
				token = tok
			}
		}

		if token == "" {
			token = cfg.KeyGenerator()
			cfg.Metrics.tokenIssued()
		}

		if err := p.persist(ctx, sess, token); err != nil {
			p.fail(w, r, err)
			return
		}
		if sess != nil {
			if err := cfg.Session.Save(w, r, sess); err != nil {
				p.fail(w, r, fmt.Errorf("csrf: session save: %w", err))
				return
			}
		}
		if !safeMethods[r.Method] {
			cfg.Metrics.validated("ok")
		}

		p.setCookie(w, token)
		w.Header().Add("Vary", "Cookie")

		h := &Handler{p: p, sess: sess, token: token}
		next.ServeHTTP(w, r.WithContext(contextWithToken(ctx, token, h)))
	})
}

// existingToken returns the client's token when it is still live, or "".
func (p *Protector) existingToken(ctx context.Context, r *http.Request, sess Session) (string, error) {
	if sess != nil {
		tok, _ := p.sessionToken(sess)
		return tok, nil
	}

	c, err := r.Cookie(p.cfg.CookieName)
	if err != nil || c.Value == "" {
		return "", nil
	}
	state, err := p.lookup(ctx, nil, c.Value)
	if err != nil {
		return "", err
	}
	if state != tokenLive {
		return "", nil
	}
	return c.Value, nil
}

// validate runs the unsafe-method checks and returns the accepted token.
func (p *Protector) validate(ctx context.Context, w http.ResponseWriter, r *http.Request, sess Session) (string, error) {
	err := p.checkOrigin(r)
	if errors.Is(err, errOriginNotFound) {
		err = nil
		if p.scheme(r) == "https" {
			err = p.checkReferer(r)
		}
	}
	if err != nil {
		return "", err
	}

	tok, err := p.cfg.Extractor(r)
	if err != nil {
		return "", fmt.Errorf("csrf: extract token: %w", err)
	}
	if tok == "" {
		return "", ErrTokenNotFound
	}

	if !p.cookieExtractor {
		var cookieToken string
		if c, err := r.Cookie(p.cfg.CookieName); err == nil {
			cookieToken = c.Value
		}
		if !compareTokens(tok, cookieToken) {
			return "", ErrTokenInvalid
		}
	}

	state, err := p.lookup(ctx, sess, tok)
	if err != nil {
		return "", err
	}
	switch state {
	case tokenMissing:
		p.expireCookie(w)
		return "", ErrTokenNotFound
	case tokenMismatch:
		return "", ErrTokenInvalid
	}
	return tok, nil
}

// fail logs err, counts it when the request was an unsafe one, then hands it
// to the ErrorHandler.
func (p *Protector) fail(w http.ResponseWriter, r *http.Request, err error) {
	why := reason(err)
	if !safeMethods[r.Method] {
		p.cfg.Metrics.validated(why)
	}

	log := p.cfg.Logger.With(
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("reason", why),
	)
	if why == "internal" {
		log.Error("csrf check aborted", zap.Error(err))
	} else {
		log.Debug("csrf check failed", zap.Error(err))
	}

	p.cfg.ErrorHandler(w, r, err)
}

func (p *Protector) setCookie(w http.ResponseWriter, tok string) {
	cfg := p.cfg
	maxAge, expires := p.expiry()
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    tok,
		Path:     cfg.CookiePath,
		Domain:   cfg.CookieDomain,
		MaxAge:   maxAge,
		Expires:  expires,
		SameSite: cfg.CookieSameSite,
		Secure:   cfg.CookieSecure,
		HttpOnly: cfg.CookieHTTPOnly,
	})
}

func (p *Protector) expireCookie(w http.ResponseWriter) {
	cfg := p.cfg
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    "",
		Path:     cfg.CookiePath,
		Domain:   cfg.CookieDomain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		SameSite: cfg.CookieSameSite,
		Secure:   cfg.CookieSecure,
		HttpOnly: cfg.CookieHTTPOnly,
	})
}

// TokenHandler returns an HTTP handler that writes the current CSRF token.
// This is useful for SPAs to fetch the token and attach it to subsequent requests.
//
// Returns:
// - http.Handler that responds with the token in the response body (text/plain).
func (p *Protector) TokenHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok, ok := TokenFromContext(r.Context()); ok {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			_, _ = w.Write([]byte(tok))
			return
		}
		http.Error(w, "no token", http.StatusInternalServerError)
	})
}
