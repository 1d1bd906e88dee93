// Package api is the intake surface: webhook submission, job status lookup
// and the health/metrics endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/framefeed/vidscribe/internal/config"
	"github.com/framefeed/vidscribe/internal/log"
	"github.com/framefeed/vidscribe/internal/policy"
	"github.com/framefeed/vidscribe/internal/queue"
)

const serviceName = "vidscribe"

// Broker is the queue surface the server needs.
type Broker interface {
	Enqueue(ctx context.Context, sub queue.Submission) (string, error)
	StatusOf(ctx context.Context, jobID string) (*queue.Status, error)
	Depth(ctx context.Context) (int64, error)
}

// Server serves the intake endpoints.
type Server struct {
	cfg      *config.Config
	broker   Broker
	policies *policy.Table
}

// New builds the intake server.
func New(cfg *config.Config, broker Broker, policies *policy.Table) *Server {
	return &Server{cfg: cfg, broker: broker, policies: policies}
}

// Handler assembles the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/task/{id}", s.handleTaskStatus)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(30, time.Minute))
		r.Post("/webhook/process-video", s.handleWebhook)
		r.Post("/test/task", s.handleTestTask)
	})

	return r
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// with a bounded drain window.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Webhook.Host, s.cfg.Webhook.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithComponent("api").Info().Str("addr", srv.Addr).Msg("intake server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// requestLogger emits one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.WithComponent("api").Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
