package csrf

import "context"

type ctxKey string

const (
	tokenKey   ctxKey = "csrf_token_ctx"
	handlerKey ctxKey = "csrf_handler_ctx"
)

// contextWithToken returns a derived context that stores the given CSRF token
// and the Handler able to revoke it.
//
// Params:
// - ctx: base context to attach the token to.
// - tok: CSRF token string to store.
// - h: per-request handler.
//
// Returns:
// - a new context containing the token and handler.
func contextWithToken(ctx context.Context, tok string, h *Handler) context.Context {
	ctx = context.WithValue(ctx, tokenKey, tok)
	return context.WithValue(ctx, handlerKey, h)
}

// TokenFromContext returns the CSRF token stored in ctx, if present.
//
// Params:
// - ctx: context potentially containing a token set by the middleware.
//
// Returns:
// - token (string) and a boolean indicating whether a token was found.
func TokenFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(tokenKey).(string)
	return s, ok
}

// HandlerFromContext returns the Handler the middleware attached to ctx.
func HandlerFromContext(ctx context.Context) (*Handler, bool) {
	h, ok := ctx.Value(handlerKey).(*Handler)
	return h, ok
}
