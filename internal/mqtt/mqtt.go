// Package mqtt publishes alerts, status snapshots and lifecycle events to an
// MQTT broker, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/nunofsantos/coop-controller/internal/notify"
)

// DefaultPrefix is the topic prefix when none is configured.
const DefaultPrefix = "coop"

// Topics are the three topics the controller publishes on.
type Topics struct {
	Alerts string
	Status string
	System string
}

// TopicsFor derives the topics from a prefix.
func TopicsFor(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Alerts: prefix + "/alerts",
		Status: prefix + "/status",
		System: prefix + "/system",
	}
}

// Publisher publishes controller output to MQTT.
type Publisher interface {
	// PublishAlert sends a delivered notification.
	// Returns error if publishing fails (should not crash the process).
	PublishAlert(n notify.Notification) error

	// PublishStatus sends a retained status snapshot.
	PublishStatus(payload []byte) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// AlertPayload is the MQTT message for a notification.
type AlertPayload struct {
	Alert AlertInner `json:"alert"`
}

// AlertInner contains the notification details.
type AlertInner struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Severity  string `json:"severity"`
	Device    string `json:"device"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// FormatAlertPayload creates the JSON payload for a notification.
func FormatAlertPayload(n notify.Notification) ([]byte, error) {
	return json.Marshal(AlertPayload{
		Alert: AlertInner{
			ID:        n.ID,
			Timestamp: n.Time.UTC().Format(time.RFC3339),
			Severity:  n.Severity.String(),
			Device:    n.Device,
			Kind:      n.Kind,
			Message:   n.Message,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
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

// AlertSink adapts a Publisher to the notification dispatcher.
type AlertSink struct {
	pub Publisher
}

// NewAlertSink creates a sink publishing through pub.
func NewAlertSink(pub Publisher) *AlertSink {
	return &AlertSink{pub: pub}
}

// Deliver implements notify.Sink.
func (s *AlertSink) Deliver(n notify.Notification) error {
	return s.pub.PublishAlert(n)
}
