package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/lecture-agent/internal/config"
	"github.com/snarg/lecture-agent/internal/events"
	"github.com/snarg/lecture-agent/internal/metrics"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// Deps are the components the HTTP surface exposes.
type Deps struct {
	Session SessionController
	Library RecordingLibrary
	Queue   TaskQueue
	Bus     *events.Bus
	Health  *HealthHandler
}

func NewServer(cfg *config.Config, deps Deps, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(CORS)
	r.Use(metrics.InstrumentHandler)

	health := deps.Health
	if health == nil {
		health = NewHealthHandler("dev", time.Now())
	}

	// Scrape endpoint — no auth
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Health endpoint — no auth
		r.Get("/health", health.ServeHTTP)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(cfg.AuthToken))

			NewSessionHandler(deps.Session, deps.Library, deps.Queue, log).Routes(r)
			NewTasksHandler(deps.Queue, log).Routes(r)
			NewRecordingsHandler(deps.Library, log).Routes(r)
			NewEventsHandler(deps.Bus).Routes(r)
		})
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
