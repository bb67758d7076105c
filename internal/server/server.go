// Package server wires the CSRF guard into a chi router for the csrfguard
// demo binary.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JeanGrijp/csrfguard/csrf"
	"github.com/JeanGrijp/csrfguard/internal/config"
	"github.com/JeanGrijp/csrfguard/session"
)

type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	protector *csrf.Protector
	sessions  *session.Store
	registry  *prometheus.Registry
	closers   []io.Closer
	handler   http.Handler
}

// New opens the configured storage and builds the router.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	st, closers, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		closers:  closers,
	}

	csrfCfg := csrf.Config{
		CookieName:          cfg.CSRF.CookieName,
		CookieDomain:        cfg.CSRF.CookieDomain,
		CookieSecure:        cfg.CSRF.CookieSecure,
		CookieSameSite:      cfg.SameSite(),
		CookieSessionOnly:   cfg.CSRF.CookieSessionOnly,
		KeyLookup:           cfg.CSRF.KeyLookup,
		IdleTimeout:         cfg.CSRF.IdleTimeout,
		SingleUseToken:      cfg.CSRF.SingleUseToken,
		TrustedOrigins:      cfg.CSRF.TrustedOrigins,
		TrustForwardedProto: cfg.CSRF.TrustForwardedProto,
		Storage:             st,
		ErrorHandler:        s.csrfError,
		Logger:              logger.Named("csrf"),
		Metrics:             csrf.NewMetrics(reg),
	}
	if cfg.CSRF.Sessions {
		s.sessions = session.New(st, session.Config{
			CookieSecure:   cfg.CSRF.CookieSecure,
			CookieDomain:   cfg.CSRF.CookieDomain,
			CookieSameSite: cfg.SameSite(),
		})
		csrfCfg.Session = s.sessions
	}

	p, err := csrf.New(csrfCfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.protector = p
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases storage connections.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(s.protector.Protect)

		r.Get("/csrf-token", s.protector.TokenHandler().ServeHTTP)
		r.Get("/", s.home)
		r.Post("/transfer", s.transfer)
		r.Post("/login", s.login)
		r.Post("/logout", s.logout)
	})
	return r
}
