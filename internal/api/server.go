// Package api exposes the transfer handler over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gitlab.bluewillows.net/root/sftpgate/internal/health"
	"gitlab.bluewillows.net/root/sftpgate/pkg/transfer"
)

// DefaultMaxRequestBytes bounds a request body when no limit is configured.
const DefaultMaxRequestBytes = 32 << 20

// Server is the HTTP front end of sftpgate.
type Server struct {
	handler *transfer.Handler
	checks  *health.Checks
	logger  *slog.Logger
	maxBody int64
	router  *chi.Mux
}

// Option is a functional option for configuring the Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithChecks mounts health, readiness and metrics endpoints.
func WithChecks(c *health.Checks) Option {
	return func(s *Server) {
		s.checks = c
	}
}

// WithMaxRequestBytes limits the size of request bodies.
func WithMaxRequestBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// New creates a Server around h.
func New(h *transfer.Handler, opts ...Option) *Server {
	s := &Server{
		handler: h,
		logger:  slog.Default(),
		maxBody: DefaultMaxRequestBytes,
		router:  chi.NewRouter(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.accessLog)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	r := s.router

	if s.checks != nil {
		s.checks.Mount(r)
	}

	r.Route("/v1/profiles", func(r chi.Router) {
		r.Get("/", s.listProfiles)
		r.Post("/{profile}/requests", s.handleRequest)
	})
}

// accessLog logs one line per HTTP request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("http_request_id", middleware.GetReqID(r.Context())),
			slog.String("remote", r.RemoteAddr),
		)
	})
}

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully, waiting up to shutdownTimeout for in-flight requests.
func (s *Server) Serve(ctx context.Context, l net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", slog.String("address", l.Addr().String()))
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
