package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/promptbandit/promptbandit/internal/bandit"
	"github.com/promptbandit/promptbandit/internal/observer"
	"github.com/promptbandit/promptbandit/internal/segment"
	"github.com/promptbandit/promptbandit/internal/store"
)

// Server is the HTTP surface of the bandit: selection, conversion
// ingestion, pool stats, health and metrics.
type Server struct {
	store     *store.SQLiteStore
	selector  *bandit.Selector
	segments  *segment.Aggregator
	observer  *observer.Observer
	logger    *slog.Logger
	port      int
	router    *http.ServeMux
	startTime time.Time
}

func New(s *store.SQLiteStore, selector *bandit.Selector, segments *segment.Aggregator,
	obs *observer.Observer, logger *slog.Logger, port int) *Server {
	srv := &Server{
		store:     s,
		selector:  selector,
		segments:  segments,
		observer:  obs,
		logger:    logger,
		port:      port,
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/select", s.handleSelect)
	s.router.HandleFunc("/api/convert", s.handleConvert)
	s.router.HandleFunc("/api/variants", s.handleVariants)
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.Info("server listening", "port", s.port)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
