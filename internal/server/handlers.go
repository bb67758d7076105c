package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JeanGrijp/csrfguard/csrf"
)

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	if tok, ok := csrf.TokenFromContext(r.Context()); ok {
		fmt.Fprintf(w, "Hello! CSRF token: %s", tok)
		return
	}
	fmt.Fprint(w, "Hello!")
}

// transfer stands in for any state-changing endpoint; reaching it means the
// token was accepted.
func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte("ok"))
}

// login rotates the CSRF token, and the session ID in session mode, the way
// a real login handler must once credentials check out.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	h, ok := csrf.HandlerFromContext(r.Context())
	if !ok {
		http.Error(w, "csrf middleware missing", http.StatusInternalServerError)
		return
	}
	if err := h.DeleteToken(w, r); err != nil {
		s.internalError(w, r, err)
		return
	}
	if s.sessions != nil {
		sess := h.Session()
		sess.Set("user", []byte(r.FormValue("user")))
		if err := s.sessions.Renew(w, r, sess); err != nil {
			s.internalError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	h, ok := csrf.HandlerFromContext(r.Context())
	if !ok {
		http.Error(w, "csrf middleware missing", http.StatusInternalServerError)
		return
	}
	if err := h.DeleteToken(w, r); err != nil {
		s.internalError(w, r, err)
		return
	}
	if s.sessions != nil {
		if err := s.sessions.Destroy(w, r, h.Session()); err != nil {
			s.internalError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// csrfError answers 403 for validation failures and 500 when a backend
// broke, so an outage is not mistaken for an attack.
func (s *Server) csrfError(w http.ResponseWriter, r *http.Request, err error) {
	for _, known := range []error{
		csrf.ErrTokenNotFound, csrf.ErrTokenInvalid,
		csrf.ErrRefererNotFound, csrf.ErrRefererInvalid, csrf.ErrRefererNoMatch,
		csrf.ErrOriginInvalid, csrf.ErrOriginNoMatch,
	} {
		if errors.Is(err, known) {
			csrf.DefaultErrorHandler(w, r, err)
			return
		}
	}
	s.internalError(w, r, err)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// logRequests logs one line per request with its status and duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request completed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}
