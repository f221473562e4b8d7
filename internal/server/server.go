// Package server exposes the experiment engine over a JSON HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crescendo-labs/crescendo/internal/engine"
)

type Server struct {
	engine *engine.Engine
	srv    *http.Server
	log    *zap.Logger
}

func New(e *engine.Engine, port int) *Server {
	s := &Server{
		engine: e,
		log:    zap.L().Named("server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/experiments", func(r chi.Router) {
			r.Post("/", s.handleCreateExperiment)
			r.Get("/", s.handleListExperiments)

			r.Route("/{experimentID}", func(r chi.Router) {
				r.Get("/", s.handleGetExperiment)
				r.Post("/start", s.handleStartExperiment)
				r.Post("/stop", s.handleStopExperiment)
				r.Get("/results", s.handleResults)
				r.Get("/report", s.handleReport)
				r.Post("/assign", s.handleAssign)
				r.Post("/events", s.handleTrackEvent)
			})
		})
		r.Get("/framework/metrics", s.handleFrameworkMetrics)
	})

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until the context is cancelled, then drains in-flight
// requests.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("shutdown", zap.Error(err))
		}
	}()

	s.log.Info("starting server", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}
