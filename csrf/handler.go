package csrf

import (
	"fmt"
	"net/http"
)

// Handler gives request handlers control over the token issued for the
// current request. Obtain it with HandlerFromContext.
type Handler struct {
	p     *Protector
	sess  Session
	token string
}

// Session returns the session the middleware loaded, or nil in storage mode.
func (h *Handler) Session() Session {
	return h.sess
}

// DeleteToken revokes the current token and expires the CSRF cookie.
// Call it whenever the client's authentication or authorization state
// changes; the next safe request is issued a fresh token.
//
// Params:
// - w: response writer, used to expire the cookie and save the session.
// - r: the current request.
//
// Returns:
// - an error when the storage or session backend fails.
func (h *Handler) DeleteToken(w http.ResponseWriter, r *http.Request) error {
	if err := h.p.remove(r.Context(), h.sess, h.token); err != nil {
		return err
	}
	if h.sess != nil {
		if err := h.p.cfg.Session.Save(w, r, h.sess); err != nil {
			return fmt.Errorf("csrf: session save: %w", err)
		}
	}
	h.p.expireCookie(w)
	h.p.cfg.Metrics.tokenDeleted()
	h.token = ""
	return nil
}
