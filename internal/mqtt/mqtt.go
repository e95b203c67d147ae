// Package mqtt delivers pump telemetry and lifecycle events over MQTT.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/pump-guard/internal/telemetry"
)

// Topic prefixes; the pump id is appended.
const (
	TopicTelemetry = "pump-guard/telemetry/"
	TopicSystem    = "pump-guard/system/"
)

// Publisher is a telemetry sink that also carries lifecycle events.
type Publisher interface {
	telemetry.Sink

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "MQTT_DISCONNECT"
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	PumpID    string `json:"pump_id"`
	Session   string `json:"session"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
// A zero Timestamp is omitted.
func FormatSystemPayload(tags telemetry.Tags, event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Event:   event.Event,
			Reason:  event.Reason,
			PumpID:  tags.PumpID,
			Session: tags.Session,
		},
	}
	if !event.Timestamp.IsZero() {
		payload.System.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(payload)
}

// WillEvent is the last-will message the broker publishes when the
// connection drops without a clean disconnect. The will is registered at
// connect time and the broker sends it later, so it carries no timestamp;
// subscribers use the arrival time.
func WillEvent() SystemEvent {
	return SystemEvent{
		Event:    "SHUTDOWN",
		Reason:   "MQTT_DISCONNECT",
		Retained: true,
	}
}
