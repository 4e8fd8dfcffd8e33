// Package mqtt provides MQTT publishing and an MQTT-switched relay with
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/printer-watchdog/internal/logic"
)

// Topic suffixes appended to the configured prefix.
const (
	TopicEvents = "events"
	TopicSystem = "system"
)

// Relay command payloads understood by common smart plugs (Tasmota, Shelly in
// MQTT mode, zigbee2mqtt switches).
const (
	PayloadOn  = "ON"
	PayloadOff = "OFF"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a power event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, reload, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "RELOAD", "SHUTDOWN"
	Reason     string // e.g., "SIGTERM", "SIGHUP"
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Power PowerPayload `json:"power"`
}

// PowerPayload contains the power event details.
type PowerPayload struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	Reason     string `json:"reason"`
	LastActive string `json:"last_active,omitempty"`
}

// FormatPayload creates the JSON payload for a power event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Power: PowerPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Reason:    string(event.Reason),
		},
	}
	if !event.LastActive.IsZero() {
		payload.Power.LastActive = event.LastActive.UTC().Format(time.RFC3339)
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Discard is a Publisher that drops everything. Used when no broker is configured.
type Discard struct{}

func (Discard) Publish(logic.Event) error       { return nil }
func (Discard) PublishSystem(SystemEvent) error { return nil }
func (Discard) Close() error                    { return nil }
func (Discard) IsConnected() bool               { return false }
