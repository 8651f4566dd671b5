package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/roomd/internal/config"
	"github.com/dokzlo13/roomd/internal/eventbus"
	"github.com/dokzlo13/roomd/internal/history"
	"github.com/dokzlo13/roomd/internal/mqtt"
)

var errMQTTDisconnected = errors.New("mqtt broker not connected")

// MQTTService mirrors dispatch audit entries to a broker.
type MQTTService struct {
	publisher mqtt.Publisher
}

// NewMQTTService connects to the configured broker. It returns nil when MQTT is disabled.
func NewMQTTService(cfg *config.Config) (*MQTTService, error) {
	if !cfg.MQTT.Enabled {
		log.Debug().Msg("MQTT mirror disabled")
		return nil, nil
	}

	pub, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic)
	if err != nil {
		return nil, err
	}
	log.Info().Str("broker", cfg.MQTT.Broker).Str("topic", cfg.MQTT.Topic).Msg("MQTT mirror enabled")
	return &MQTTService{publisher: pub}, nil
}

// NewMQTTServiceWithPublisher wraps an existing publisher.
func NewMQTTServiceWithPublisher(pub mqtt.Publisher) *MQTTService {
	return &MQTTService{publisher: pub}
}

// Register subscribes the publisher to dispatch events.
func (s *MQTTService) Register(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeDispatch, func(e eventbus.Event) {
		entry, ok := e.Payload.(history.ControlEntry)
		if !ok {
			return
		}
		if err := s.publisher.Publish(entry); err != nil {
			log.Warn().Err(err).Str("request_id", entry.RequestID).Msg("Failed to publish control entry")
		}
	})
}

// Ready reports whether the broker connection is up. Publishers that do not
// track their connection are always ready.
func (s *MQTTService) Ready(context.Context) error {
	status, ok := s.publisher.(mqtt.ConnectionStatus)
	if !ok || status.IsConnected() {
		return nil
	}
	return errMQTTDisconnected
}

// Close disconnects from the broker.
func (s *MQTTService) Close() {
	if err := s.publisher.Close(); err != nil {
		log.Warn().Err(err).Msg("MQTT close error")
	}
}
