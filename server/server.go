// Package server exposes the ingestion pipeline and the query engine over
// HTTP: /apify ingests a remote source, /api/{identity} queries the
// materialized table, /profile/{identity} serves the profiling report.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/singleflight"

	"github.com/opendatateam/csvapi"
	"github.com/opendatateam/csvapi/config"
	"github.com/opendatateam/csvapi/fetch"
	"github.com/opendatateam/csvapi/profile"
)

// requestTimeout bounds one request end to end, ingestion included.
const requestTimeout = 90 * time.Second

// Server is the HTTP layer over the core pipeline.
type Server struct {
	cfg      *config.Config
	store    *csvapi.Store
	parser   *csvapi.Parser
	engine   *csvapi.Engine
	fetcher  *fetch.Fetcher
	profiles *profile.Generator
	router   *chi.Mux

	// inflight coalesces concurrent ingestions of the same identity; the
	// store additionally serializes materializations per identity.
	inflight singleflight.Group
}

// New wires a Server from configuration.
func New(cfg *config.Config) (*Server, error) {
	store, err := csvapi.NewStore(cfg.DBRootDir)
	if err != nil {
		return nil, err
	}

	parser := csvapi.NewParser()
	parser.SniffWindow = cfg.SniffWindow

	s := &Server{
		cfg:      cfg,
		store:    store,
		parser:   parser,
		engine:   csvapi.NewEngine(store, cfg.MaxPageSize),
		fetcher:  fetch.New(cfg.MaxFileSize),
		profiles: profile.NewGenerator(store),
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(requestTimeout))
	if len(s.cfg.ReferrersFilter) > 0 {
		s.router.Use(referrerFilter(s.cfg.ReferrersFilter))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/apify", s.handleApify)
	s.router.Post("/apify", s.handleApify)
	s.router.Get("/api/{identity}", s.handleQuery)
	s.router.Get("/profile/{identity}", s.handleProfile)
}

// Router returns the HTTP handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
