package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/btoaldas/actas-ia/internal/audio"
	"github.com/btoaldas/actas-ia/internal/audit"
	"github.com/btoaldas/actas-ia/internal/config"
	"github.com/btoaldas/actas-ia/internal/database"
	"github.com/btoaldas/actas-ia/internal/events"
	"github.com/btoaldas/actas-ia/internal/metrics"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// ServerDeps bundles the collaborators the HTTP surface needs. Bus,
// collector, store, and mqtt may be nil; the affected endpoints then
// answer 503 or report not_configured.
type ServerDeps struct {
	DB            *database.DB
	Bus           *events.Bus
	Collector     *audit.Collector
	AudioStore    audio.Store
	MQTT          MQTTStatus
	WatcherStatus func() string
	Version       string
	StartTime     time.Time
}

func NewServer(cfg *config.Config, deps ServerDeps, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(CORS)

	// Open endpoints
	health := NewHealthHandler(deps.DB, deps.MQTT, deps.WatcherStatus, deps.Version, deps.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	structures := NewStructuresHandler(deps.DB, deps.Bus)
	auditH := NewAuditHandler(deps.Collector)
	ops := NewOperationsHandler(deps.DB)
	eventsH := NewEventsHandler(deps.Bus)
	audioH := NewAudioHandler(deps.DB, deps.AudioStore, cfg.AudioDir)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.Use(WithUser)

		r.Route("/api/v2", func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler {
				return metrics.InstrumentHandler("/api/v2", next)
			})
			structures.Routes(r)
		})

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler {
				return metrics.InstrumentHandler("/api/v1", next)
			})
			auditH.Routes(r)
			ops.Routes(r)
			eventsH.Routes(r)
			audioH.Routes(r)
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
