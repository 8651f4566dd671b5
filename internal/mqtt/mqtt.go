// Package mqtt mirrors dispatch audit entries to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/dokzlo13/roomd/internal/history"
)

// DefaultTopic is the MQTT topic for dispatch audit entries.
const DefaultTopic = "roomd/control/events"

// Publisher publishes audit entries to MQTT.
type Publisher interface {
	// Publish sends one dispatch audit entry to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(entry history.ControlEntry) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Control ControlPayload `json:"control"`
}

// ControlPayload contains the dispatch details.
type ControlPayload struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
	Device    string `json:"device"`
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error,omitempty"`
}

// FormatPayload creates the JSON payload for an audit entry.
func FormatPayload(entry history.ControlEntry) ([]byte, error) {
	payload := Payload{
		Control: ControlPayload{
			RequestID: entry.RequestID,
			Timestamp: entry.Timestamp.UTC().Format(time.RFC3339),
			Device:    entry.Device,
			Action:    entry.Action,
			Reason:    entry.Reason,
			Outcome:   entry.Outcome,
			Error:     entry.Error,
		},
	}
	return json.Marshal(payload)
}
