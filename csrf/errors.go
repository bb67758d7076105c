package csrf

import (
	"errors"
	"net/http"
)

// Validation failures handed to the ErrorHandler.
var (
	ErrTokenNotFound   = errors.New("csrf: token not found")
	ErrTokenInvalid    = errors.New("csrf: token invalid")
	ErrRefererNotFound = errors.New("csrf: referer not supplied")
	ErrRefererInvalid  = errors.New("csrf: referer invalid")
	ErrRefererNoMatch  = errors.New("csrf: referer does not match host or trusted origins")
	ErrOriginInvalid   = errors.New("csrf: origin invalid")
	ErrOriginNoMatch   = errors.New("csrf: origin does not match host or trusted origins")
)

// errOriginNotFound tells the guard to fall back to the Referer check.
var errOriginNotFound = errors.New("csrf: origin not supplied or null")

// ErrorHandler writes the response for a rejected request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// DefaultErrorHandler rejects the request with 403 Forbidden and no detail.
func DefaultErrorHandler(w http.ResponseWriter, _ *http.Request, _ error) {
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

// reason maps an error to a short label used in logs and metrics.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrTokenNotFound):
		return "token_not_found"
	case errors.Is(err, ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, ErrRefererNotFound):
		return "referer_not_found"
	case errors.Is(err, ErrRefererInvalid):
		return "referer_invalid"
	case errors.Is(err, ErrRefererNoMatch):
		return "referer_no_match"
	case errors.Is(err, ErrOriginInvalid):
		return "origin_invalid"
	case errors.Is(err, ErrOriginNoMatch):
		return "origin_no_match"
	default:
		return "internal"
	}
}
