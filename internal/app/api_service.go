package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/roomd/internal/api"
	"github.com/dokzlo13/roomd/internal/config"
)

// APIService wraps the HTTP API server.
type APIService struct {
	cfg     *config.Config
	server  *api.Server
	done    chan struct{}
	started bool
}

// NewAPIService creates a new APIService.
func NewAPIService(cfg *config.Config, deps api.Deps) *APIService {
	return &APIService{
		cfg:    cfg,
		server: api.NewServer(cfg.Server.Host, cfg.Server.Port, deps),
		done:   make(chan struct{}),
	}
}

// Start runs the server in the background. A listen failure is fatal.
func (s *APIService) Start(ctx context.Context, onFatalError func(error)) {
	s.started = true
	go func() {
		defer close(s.done)
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("API server error")
			onFatalError(err)
		}
	}()
}

// Wait blocks until the server has stopped and in-flight requests are done.
// It returns immediately if Start was never called.
func (s *APIService) Wait() {
	if !s.started {
		return
	}
	<-s.done
}
