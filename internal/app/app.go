package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/roomd/internal/config"
)

// App owns the roomd service graph for one serve run.
type App struct {
	cfg      *config.Config
	services *Services

	fatalOnce sync.Once
	fatalErr  error
}

// New builds every service without starting any of them.
func New(cfg *config.Config, version string) (*App, error) {
	services, err := NewServices(cfg, version)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, services: services}, nil
}

// Run starts the services and blocks until ctx is cancelled or a service
// fails fatally. It then drains the API, the decision loop and the event bus
// before closing storage, and returns the first fatal error, if any.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	onFatalError := func(err error) {
		a.fatalOnce.Do(func() {
			a.fatalErr = err
			log.Error().Err(err).Msg("Fatal error, initiating shutdown")
			cancel()
		})
	}

	if err := a.services.Start(runCtx, onFatalError); err != nil {
		cancel()
		a.services.Stop()
		return err
	}

	log.Info().
		Str("addr", a.cfg.Server.Host).
		Int("port", a.cfg.Server.Port).
		Int("actuators", len(a.cfg.Actuators)).
		Msg("roomd started")

	<-runCtx.Done()
	if ctx.Err() != nil {
		log.Warn().Msg("Shutdown requested")
	}

	log.Info().Msg("Shutting down...")
	cancel()
	if err := a.services.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
	log.Info().Msg("roomd stopped")

	return a.fatalErr
}
