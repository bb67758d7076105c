package csrf

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// Extractor pulls the client-submitted token out of a request.
// An empty string with a nil error means the token is absent.
type Extractor func(r *http.Request) (string, error)

const (
	sourceHeader = "header"
	sourceForm   = "form"
	sourceQuery  = "query"
	sourceParam  = "param"
	sourceCookie = "cookie"
)

// 32 MB, same as net/http's default for ParseMultipartForm.
const maxMultipartMemory = 32 << 20

func parseKeyLookup(lookup string) (source, key string, err error) {
	source, key, ok := strings.Cut(lookup, ":")
	if !ok || key == "" {
		return "", "", fmt.Errorf("csrf: malformed KeyLookup %q, want \"<source>:<key>\"", lookup)
	}
	switch source {
	case sourceHeader, sourceForm, sourceQuery, sourceParam, sourceCookie:
		return source, key, nil
	}
	return "", "", fmt.Errorf("csrf: unknown KeyLookup source %q", source)
}

func extractorFor(source, key string) Extractor {
	switch source {
	case sourceForm:
		return FromForm(key)
	case sourceQuery:
		return FromQuery(key)
	case sourceParam:
		return FromParam(key)
	case sourceCookie:
		return FromCookie(key)
	default:
		return FromHeader(key)
	}
}

// FromHeader reads the token from the named request header.
func FromHeader(name string) Extractor {
	return func(r *http.Request) (string, error) {
		return strings.TrimSpace(r.Header.Get(name)), nil
	}
}

// FromForm reads the token from an urlencoded or multipart form field.
func FromForm(field string) Extractor {
	return func(r *http.Request) (string, error) {
		if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
			if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
				return "", nil
			}
			if vals := r.MultipartForm.Value[field]; len(vals) > 0 {
				return vals[0], nil
			}
			return "", nil
		}
		// a body that fails to parse simply carries no token
		_ = r.ParseForm()
		return r.PostForm.Get(field), nil
	}
}

// FromQuery reads the token from the URL query string.
func FromQuery(name string) Extractor {
	return func(r *http.Request) (string, error) {
		return r.URL.Query().Get(name), nil
	}
}

// FromParam reads the token from a path wildcard, e.g. "/forms/{csrf}".
// Works with http.ServeMux patterns and with chi, which fills r.PathValue.
func FromParam(name string) Extractor {
	return func(r *http.Request) (string, error) {
		return r.PathValue(name), nil
	}
}

// FromCookie reads the token from a cookie. Pointing it at the CSRF cookie
// itself disables the double-submit comparison.
func FromCookie(name string) Extractor {
	return func(r *http.Request) (string, error) {
		c, err := r.Cookie(name)
		if errors.Is(err, http.ErrNoCookie) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return c.Value, nil
	}
}

// Chain tries each extractor in order and returns the first non-empty token.
func Chain(extractors ...Extractor) Extractor {
	return func(r *http.Request) (string, error) {
		for _, ex := range extractors {
			tok, err := ex(r)
			if err != nil {
				return "", err
			}
			if tok != "" {
				return tok, nil
			}
		}
		return "", nil
	}
}
