// Package api exposes the channel controller and its telemetry over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rjboer/udpsource/internal/logging"
	"github.com/rjboer/udpsource/internal/settings"
	"github.com/rjboer/udpsource/internal/telemetry"
)

// Controller is the part of the channel controller the HTTP surface drives.
type Controller interface {
	ID() string
	Settings() settings.Settings
	Pending() bool
	EditField(name, value string) error
	Commit()
	ResetToDefaults()
	Serialize() []byte
	Deserialize(data []byte) error
	ResetReadIndex()
	SetSpectrum(enabled bool)
	Spectrum() []float64
}

// Server serves the settings surface, telemetry and metrics.
type Server struct {
	srv    *http.Server
	router *mux.Router
	ctrl   Controller
	hub    *telemetry.Hub
	logger logging.Logger
}

// NewServer builds an HTTP server. gatherer may be nil to skip /metrics.
func NewServer(addr string, ctrl Controller, hub *telemetry.Hub, gatherer prometheus.Gatherer, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Server{
		router: mux.NewRouter(),
		ctrl:   ctrl,
		hub:    hub,
		logger: logger.With(logging.Field{Key: "subsystem", Value: "http"}),
	}
	s.routes(gatherer)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes(gatherer prometheus.Gatherer) {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handleEditSettings).Methods(http.MethodPatch)
	api.HandleFunc("/settings/commit", s.handleCommit).Methods(http.MethodPost)
	api.HandleFunc("/settings/reset", s.handleReset).Methods(http.MethodPost)
	api.HandleFunc("/settings/blob", s.handleExportBlob).Methods(http.MethodGet)
	api.HandleFunc("/settings/blob", s.handleImportBlob).Methods(http.MethodPut)
	api.HandleFunc("/worker/reset-read-index", s.handleResetReadIndex).Methods(http.MethodPost)
	api.HandleFunc("/spectrum", s.handleGetSpectrum).Methods(http.MethodGet)
	api.HandleFunc("/spectrum", s.handleSetSpectrum).Methods(http.MethodPut)
	if s.hub != nil {
		s.hub.Routes(api)
	}
}

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("shutdown failed", logging.Field{Key: "error", Value: err})
		}
	}()

	s.logger.Info("listening", logging.Field{Key: "addr", Value: s.srv.Addr})
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
