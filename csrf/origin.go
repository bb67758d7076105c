package csrf

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// trustedOrigins holds the normalized TrustedOrigins entries.
type trustedOrigins struct {
	exact    []string
	wildcard []wildcardOrigin
}

// wildcardOrigin matches "scheme://<anything>.suffix".
type wildcardOrigin struct {
	prefix string // "https://"
	suffix string // ".example.com"
}

func (w wildcardOrigin) match(origin string) bool {
	if !strings.HasPrefix(origin, w.prefix) {
		return false
	}
	host := origin[len(w.prefix):]
	return len(host) > len(w.suffix) && strings.HasSuffix(host, w.suffix)
}

func (t trustedOrigins) match(origin string) bool {
	if slices.Contains(t.exact, origin) {
		return true
	}
	for _, w := range t.wildcard {
		if w.match(origin) {
			return true
		}
	}
	return false
}

func parseTrustedOrigins(raw []string) (trustedOrigins, error) {
	var t trustedOrigins
	for _, o := range raw {
		scheme, rest, wildcard := strings.Cut(o, "://*.")
		if wildcard {
			norm, err := normalizeOrigin(scheme + "://" + rest)
			if err != nil {
				return trustedOrigins{}, fmt.Errorf("csrf: trusted origin %q: %w", o, err)
			}
			s, host, _ := strings.Cut(norm, "://")
			t.wildcard = append(t.wildcard, wildcardOrigin{prefix: s + "://", suffix: "." + host})
			continue
		}
		norm, err := normalizeOrigin(o)
		if err != nil {
			return trustedOrigins{}, fmt.Errorf("csrf: trusted origin %q: %w", o, err)
		}
		t.exact = append(t.exact, norm)
	}
	return t, nil
}

// normalizeOrigin turns a configured origin into "scheme://host[:port]".
// Paths, queries, fragments and credentials are rejected.
func normalizeOrigin(raw string) (string, error) {
	u, err := url.Parse(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("scheme must be http or https")
	}
	if u.Host == "" {
		return "", errors.New("missing host")
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return "", errors.New("origin must not carry a path, query, fragment or userinfo")
	}
	return u.Scheme + "://" + stripDefaultPort(u.Scheme, u.Host), nil
}

// originOf reduces an Origin or Referer value to "scheme://host[:port]".
func originOf(raw string) (string, bool) {
	u, err := url.Parse(strings.ToLower(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return u.Scheme + "://" + stripDefaultPort(u.Scheme, u.Host), true
}

func stripDefaultPort(scheme, host string) string {
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		if strings.Contains(h, ":") {
			return "[" + h + "]"
		}
		return h
	}
	return host
}

// scheme reports the scheme the client used to reach us.
func (p *Protector) scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if p.cfg.TrustForwardedProto && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return "https"
	}
	return "http"
}

func (p *Protector) requestOrigin(r *http.Request) string {
	s := p.scheme(r)
	return s + "://" + stripDefaultPort(s, strings.ToLower(r.Host))
}

// checkOrigin validates the Origin header against the request host and the
// trusted origins. errOriginNotFound means the header is absent or "null".
func (p *Protector) checkOrigin(r *http.Request) error {
	raw := strings.TrimSpace(r.Header.Get("Origin"))
	if raw == "" || strings.EqualFold(raw, "null") {
		return errOriginNotFound
	}
	origin, ok := originOf(raw)
	if !ok {
		return ErrOriginInvalid
	}
	if origin == p.requestOrigin(r) || p.origins.match(origin) {
		return nil
	}
	return ErrOriginNoMatch
}

// checkReferer is the HTTPS fallback when no Origin header was sent.
func (p *Protector) checkReferer(r *http.Request) error {
	raw := strings.TrimSpace(r.Header.Get("Referer"))
	if raw == "" {
		return ErrRefererNotFound
	}
	origin, ok := originOf(raw)
	if !ok {
		return ErrRefererInvalid
	}
	if origin == p.requestOrigin(r) || p.origins.match(origin) {
		return nil
	}
	return ErrRefererNoMatch
}
