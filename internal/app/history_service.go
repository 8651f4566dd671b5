package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/roomd/internal/config"
	"github.com/dokzlo13/roomd/internal/eventbus"
	"github.com/dokzlo13/roomd/internal/history"
)

// HistoryService persists bus events into the history store and prunes old rows.
type HistoryService struct {
	cfg   *config.Config
	store *history.Store
	wg    sync.WaitGroup
}

// NewHistoryService creates a new HistoryService.
func NewHistoryService(cfg *config.Config, store *history.Store) *HistoryService {
	return &HistoryService{cfg: cfg, store: store}
}

// Register subscribes the history sinks to the bus.
func (s *HistoryService) Register(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeSensorReading, func(e eventbus.Event) {
		r, ok := e.Payload.(history.SensorReading)
		if !ok {
			return
		}
		if err := s.store.AppendSensor(r); err != nil {
			log.Error().Err(err).Str("sensor", r.SensorType).Msg("Failed to persist sensor reading")
		}
	})

	bus.Subscribe(eventbus.EventTypeMotionReport, func(e eventbus.Event) {
		r, ok := e.Payload.(history.MotionReport)
		if !ok {
			return
		}
		if err := s.store.AppendMotion(r); err != nil {
			log.Error().Err(err).Msg("Failed to persist motion report")
		}
	})

	bus.Subscribe(eventbus.EventTypeNoiseReport, func(e eventbus.Event) {
		r, ok := e.Payload.(history.NoiseReport)
		if !ok {
			return
		}
		if err := s.store.AppendNoise(r); err != nil {
			log.Error().Err(err).Msg("Failed to persist noise report")
		}
	})

	bus.Subscribe(eventbus.EventTypeDispatch, func(e eventbus.Event) {
		entry, ok := e.Payload.(history.ControlEntry)
		if !ok {
			return
		}
		if err := s.store.AppendControl(entry); err != nil {
			log.Error().Err(err).
				Str("request_id", entry.RequestID).
				Str("device", entry.Device).
				Msg("Failed to persist control entry")
		}
	})
}

// Start begins periodic retention cleanup.
func (s *HistoryService) Start(ctx context.Context) {
	if s.cfg.History.RetentionDays <= 0 {
		log.Info().Msg("History retention disabled, logs are kept forever")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCleanup(ctx)
	}()
}

// Wait blocks until the cleanup loop has returned.
func (s *HistoryService) Wait() {
	s.wg.Wait()
}

// runCleanup periodically deletes history rows older than the retention window.
func (s *HistoryService) runCleanup(ctx context.Context) {
	retention := s.cfg.History.RetentionPeriod()
	interval := s.cfg.History.CleanupInterval.Duration()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.store.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old history entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old history entries")
			}
		}
	}
}
