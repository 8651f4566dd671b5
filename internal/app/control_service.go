package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/roomd/internal/control"
)

// ControlService runs the decision loop.
type ControlService struct {
	Engine *control.Engine
	wg     sync.WaitGroup
}

// NewControlService creates a new ControlService.
func NewControlService(engine *control.Engine) *ControlService {
	return &ControlService{Engine: engine}
}

// Start begins the decision loop in the background.
func (s *ControlService) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Engine.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Decision loop error")
		}
	}()
}

// Wait blocks until the loop has returned, so no dispatch is in flight.
func (s *ControlService) Wait() {
	s.wg.Wait()
}
