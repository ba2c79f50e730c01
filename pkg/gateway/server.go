// Package gateway exposes the HTTP surface: device ingest, alert
// queries and lifecycle operations, subscriber preferences, and the
// websocket upgrade.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aquamon/aquamon/pkg/alert"
	"github.com/aquamon/aquamon/pkg/infra/logger"
	"github.com/aquamon/aquamon/pkg/infra/ratelimit"
	"github.com/aquamon/aquamon/pkg/notify"
	"github.com/aquamon/aquamon/pkg/realtime"
	"github.com/aquamon/aquamon/pkg/service"
)

// Options collects the collaborators the server needs.
type Options struct {
	ListenAddr  string
	DeviceKeys  map[string]string
	Monitor     *service.Monitor
	Alerts      alert.Store
	Obligations notify.ObligationStore
	Prefs       notify.PreferenceStore
	Limiter     ratelimit.Limiter
	Hub         *realtime.Hub
	Validator   *realtime.TokenValidator
}

type Server struct {
	addr        string
	deviceKeys  map[string]string
	monitor     *service.Monitor
	alerts      alert.Store
	obligations notify.ObligationStore
	prefs       notify.PreferenceStore
	limiter     ratelimit.Limiter
	hub         *realtime.Hub
	validator   *realtime.TokenValidator

	httpServer *http.Server
}

func NewServer(opts Options) *Server {
	s := &Server{
		addr:        opts.ListenAddr,
		deviceKeys:  opts.DeviceKeys,
		monitor:     opts.Monitor,
		alerts:      opts.Alerts,
		obligations: opts.Obligations,
		prefs:       opts.Prefs,
		limiter:     opts.Limiter,
		hub:         opts.Hub,
		validator:   opts.Validator,
	}
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Routes builds the router. Exposed for tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	log := logger.Default()
	r.Use(RequestID)
	r.Use(Recovery(log))
	r.Use(Logging(log))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/readings", s.handleIngest)
		r.Get("/thresholds", s.handleThresholds)

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Get("/{id}", s.handleGetAlert)
			r.Post("/{id}/acknowledge", s.handleAcknowledge)
			r.Post("/{id}/resolve", s.handleResolve)
			r.Get("/{id}/deliveries", s.handleListDeliveries)
		})

		r.Route("/subscribers/{id}/preferences", func(r chi.Router) {
			r.Get("/", s.handleGetPreferences)
			r.Put("/", s.handlePutPreferences)
		})
	})

	if s.hub != nil && s.validator != nil {
		r.Get("/ws", realtime.HandleWS(s.hub, s.validator))
	}

	return r
}

// Start blocks serving HTTP until Stop is called or the listener
// fails.
func (s *Server) Start() error {
	logger.Default().Info("HTTP server starting", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	logger.Default().Info("HTTP server stopping")
	return s.httpServer.Shutdown(ctx)
}
