// Package service exposes fill runs behind an HTTP webhook.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/wp-filler/internal/config"
	"github.com/xkilldash9x/wp-filler/internal/payload"
	"github.com/xkilldash9x/wp-filler/internal/runner"
)

// Runner performs one fill run.
type Runner interface {
	Run(ctx context.Context, req payload.Request) (*runner.Result, error)
}

// Server is the webhook server. Runs beyond Server.MaxConcurrentRuns queue
// until a slot frees up.
type Server struct {
	cfg        config.ServerConfig
	mode       string
	version    string
	runTimeout time.Duration
	runner     Runner
	limiter    *rate.Limiter
	runs       *semaphore.Weighted
	now        func() time.Time
	logger     *zap.Logger
}

// New creates a Server. version is reported by the health endpoint.
func New(cfg *config.Config, r Runner, version string, logger *zap.Logger) *Server {
	s := &Server{
		cfg:        cfg.Server,
		mode:       cfg.WordPress.PublishMode,
		version:    version,
		runTimeout: cfg.Timeouts.Run,
		runner:     r,
		now:        time.Now,
		logger:     logger.Named("service"),
	}
	maxRuns := cfg.Server.MaxConcurrentRuns
	if maxRuns <= 0 {
		maxRuns = 1
	}
	s.runs = semaphore.NewWeighted(maxRuns)
	if cfg.Server.RateLimit > 0 {
		burst := cfg.Server.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), burst)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	compressor := middleware.NewCompressor(5, "application/json")
	compressor.SetEncoder("br", func(w io.Writer, level int) io.Writer {
		return brotli.NewWriterLevel(w, level)
	})
	r.Use(compressor.Handler)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.rateLimit)
		r.Post("/create-landing", s.handleCreateLanding)
		r.Post("/test", s.handleTest)
	})
	return r
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully, letting in-flight runs finish within the shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Webhook server starting", zap.String("address", ln.Addr().String()))
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down webhook server gracefully...")
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		_ = httpServer.Close()
		<-errCh
		return err
	}
	<-errCh
	s.logger.Info("Webhook server stopped.")
	return nil
}
