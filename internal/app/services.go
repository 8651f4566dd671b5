package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/roomd/internal/api"
	"github.com/dokzlo13/roomd/internal/config"
	"github.com/dokzlo13/roomd/internal/control"
	"github.com/dokzlo13/roomd/internal/db"
	"github.com/dokzlo13/roomd/internal/dispatch"
	"github.com/dokzlo13/roomd/internal/eventbus"
	"github.com/dokzlo13/roomd/internal/history"
	"github.com/dokzlo13/roomd/internal/metrics"
	"github.com/dokzlo13/roomd/internal/script"
	"github.com/dokzlo13/roomd/internal/snapshot"
	"github.com/dokzlo13/roomd/internal/thresholds"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB      *db.DB
	History *history.Store
	Bus     *eventbus.Bus
	Metrics *metrics.Metrics

	// Shared state
	Snapshots  *snapshot.Store
	Thresholds *thresholds.Store

	Dispatcher *dispatch.Dispatcher
	Script     *script.Rule

	// High-level services
	Control    *ControlService
	HistorySvc *HistoryService
	MQTT       *MQTTService
	API        *APIService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config, version string) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.History = history.New(database.DB)

	s.Metrics = metrics.New()

	// Initialize event bus
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())
	s.Bus.OnDrop = func(t eventbus.EventType) { s.Metrics.EventDropped(string(t)) }

	s.Snapshots = snapshot.NewStore()
	s.Thresholds = thresholds.New(thresholdsFromConfig(cfg.Thresholds))

	// Dispatch attempts go to the audit log through the bus
	auditor := dispatch.AuditFunc(func(entry history.ControlEntry) {
		s.Bus.Publish(eventbus.Event{Type: eventbus.EventTypeDispatch, Payload: entry})
	})
	s.Dispatcher = dispatch.New(cfg.Actuators, s.Snapshots, auditor, dispatch.Options{
		Timeout:      cfg.Dispatch.Timeout.Duration(),
		RateLimitRPS: cfg.Dispatch.RateLimitRPS,
		Metrics:      s.Metrics,
	})

	var extra []control.RuleGroup
	if cfg.Engine.RulesScript != "" {
		s.Script, err = script.LoadFile(cfg.Engine.RulesScript)
		if err != nil {
			s.Close()
			return nil, err
		}
		extra = append(extra, s.Script.Group())
		log.Info().Str("path", cfg.Engine.RulesScript).Msg("Rules script loaded")
	}

	engine := control.New(s.Snapshots, s.Thresholds, s.Dispatcher, control.Options{
		TickInterval: cfg.Engine.TickInterval.Duration(),
		CO2Debounce:  cfg.Engine.CO2Debounce.Duration(),
		RetryFailed:  cfg.Engine.RetryFailed,
		Extra:        extra,
		Metrics:      s.Metrics,
	})
	s.Control = NewControlService(engine)

	s.HistorySvc = NewHistoryService(cfg, s.History)

	s.MQTT, err = NewMQTTService(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	checks := []api.ReadyCheck{{Name: "database", Check: database.PingContext}}
	if s.MQTT != nil {
		checks = append(checks, api.ReadyCheck{Name: "mqtt", Check: s.MQTT.Ready})
	}

	s.API = NewAPIService(cfg, api.Deps{
		Snapshots:   s.Snapshots,
		Thresholds:  s.Thresholds,
		Events:      s.Bus,
		History:     s.History,
		Commanded:   engine,
		Endpoints:   s.Dispatcher.Endpoints(),
		Metrics:     s.Metrics,
		ReadyChecks: checks,
		Version:     version,
	})

	return s, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a fatal error occurs (e.g., the API cannot listen).
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	// Sinks first so nothing published at startup is lost
	s.HistorySvc.Register(s.Bus)
	if s.MQTT != nil {
		s.MQTT.Register(s.Bus)
	}

	s.HistorySvc.Start(ctx)
	s.API.Start(ctx, onFatalError)
	s.Control.Start(ctx)

	return nil
}

// Stop drains the services in dependency order. The context passed to Start
// must already be cancelled. The API goes first so no handler touches the
// database after it is closed; the loop next so no dispatch audit is
// published into a closed bus.
func (s *Services) Stop() error {
	s.API.Wait()
	s.Control.Wait()
	s.HistorySvc.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
	defer cancel()
	s.Bus.Close(ctx)

	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.MQTT != nil {
		s.MQTT.Close()
	}
	if s.Script != nil {
		s.Script.Close()
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("Database close error")
		}
	}
}

func thresholdsFromConfig(c config.ThresholdsConfig) thresholds.Values {
	return thresholds.Values{
		TempHigh:      c.TempHigh,
		TempLow:       c.TempLow,
		HumidityHigh:  c.HumidityHigh,
		CO2High:       c.CO2High,
		NoiseHigh:     c.NoiseHigh,
		MotionTimeout: c.MotionTimeout,
	}
}
