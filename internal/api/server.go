// Package api serves the sensor ingestion, threshold, status and log
// endpoints over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/roomd/internal/eventbus"
	"github.com/dokzlo13/roomd/internal/history"
	"github.com/dokzlo13/roomd/internal/metrics"
	"github.com/dokzlo13/roomd/internal/snapshot"
	"github.com/dokzlo13/roomd/internal/thresholds"
)

// EventPublisher receives history records for asynchronous persistence
type EventPublisher interface {
	Publish(event eventbus.Event)
}

// HistoryReader lists recent log rows
type HistoryReader interface {
	Recent(t history.LogType, limit int) ([]history.Row, error)
}

// CommandedSource reports the last action requested per actuator
type CommandedSource interface {
	Commanded() map[string]string
}

// Deps are the collaborators the handlers work against.
type Deps struct {
	Snapshots  *snapshot.Store
	Thresholds *thresholds.Store
	Events     EventPublisher
	History    HistoryReader
	Commanded  CommandedSource
	Endpoints  map[string]string
	Metrics    *metrics.Metrics

	// ReadyChecks back /ready; all must pass
	ReadyChecks []ReadyCheck
	Version     string
	Now         func() time.Time
}

// ReadyCheck is one named readiness check, such as the database ping
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server is the HTTP front of the daemon.
type Server struct {
	addr       string
	deps       Deps
	httpServer *http.Server
}

// NewServer creates a new API server.
func NewServer(host string, port int, deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Server{
		addr: fmt.Sprintf("%s:%d", host, port),
		deps: deps,
	}
}

// Router builds the route table without middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/sensor/environment", s.handleEnvironment).Methods(http.MethodPost)
	r.HandleFunc("/sensor/co2", s.handleCO2).Methods(http.MethodPost)
	r.HandleFunc("/sensor/motion", s.handleMotion).Methods(http.MethodPost)
	r.HandleFunc("/sensor/noise", s.handleNoise).Methods(http.MethodPost)

	r.HandleFunc("/thresholds", s.handleGetThresholds).Methods(http.MethodGet)
	r.HandleFunc("/thresholds", s.handleUpdateThresholds).Methods(http.MethodPost)

	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/logs/{type}", s.handleLogs).Methods(http.MethodGet)
	r.HandleFunc("/api/info", s.handleInfo).Methods(http.MethodGet)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)

	return r
}

// Handler returns the router wrapped in access logging and panic recovery.
func (s *Server) Handler() http.Handler {
	accessLog := log.Logger.With().Str("component", "http").Logger()
	recovered := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{}),
		handlers.PrintRecoveryStack(false),
	)(s.Router())
	return handlers.LoggingHandler(accessLog, recovered)
}

// Run serves until ctx is cancelled, then shuts down gracefully. It returns
// only after in-flight requests have finished or shutdownTimeout has passed,
// so callers may release what the handlers use once Run returns.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server shutdown error")
		s.httpServer.Close()
	}
	log.Info().Msg("API server stopped")
	return nil
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	log.Error().Str("component", "http").Msg(fmt.Sprint(v...))
}
