package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string             `json:"event,omitempty"`
	Reason        string             `json:"reason,omitempty"`
	Site          string             `json:"site"`
	Severity      string             `json:"severity"`
	Indicator     string             `json:"indicator"`
	Ready         bool               `json:"ready"`
	Day           string             `json:"day"`
	Sunrise       string             `json:"sunrise,omitempty"`
	Sunset        string             `json:"sunset,omitempty"`
	Devices       []DeviceJSON       `json:"devices"`
	Sensors       []SensorJSON       `json:"sensors"`
	Notifications []NotificationJSON `json:"notifications"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	StartTime     string             `json:"start_time"`
	Timestamp     string             `json:"timestamp"`
	UpdatedAt     string             `json:"updated_at,omitempty"`
	MQTT          MQTTStatus         `json:"mqtt"`
	Network       *NetworkJSON       `json:"network,omitempty"`
	Config        ConfigJSON         `json:"config"`
}

// DeviceJSON is the JSON representation of an actuator.
type DeviceJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Mode     string `json:"mode"`
	State    string `json:"state"`
	On       bool   `json:"on"`
	Position string `json:"position,omitempty"`
	Severity string `json:"severity"`
}

// SensorJSON is the JSON representation of a sensor.
type SensorJSON struct {
	Name     string   `json:"name"`
	State    string   `json:"state"`
	Value    *float64 `json:"value,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Severity string   `json:"severity"`
}

// NotificationJSON is the JSON representation of an active notification.
type NotificationJSON struct {
	ID        string `json:"id"`
	Device    string `json:"device"`
	Kind      string `json:"kind"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Units       string `json:"units"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	day := snap.Day
	if day == "" {
		day = "invalid"
	}
	inner := StatusInner{
		Site:          snap.Config.Site,
		Severity:      snap.Severity.String(),
		Indicator:     snap.Indicator,
		Ready:         snap.Ready(),
		Day:           day,
		Sunrise:       snap.Sunrise,
		Sunset:        snap.Sunset,
		Devices:       make([]DeviceJSON, 0, len(snap.Devices)),
		Sensors:       make([]SensorJSON, 0, len(snap.Sensors)),
		Notifications: make([]NotificationJSON, 0, len(snap.Notifications)),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Units:       snap.Config.Units,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	if snap.Ready() {
		inner.UpdatedAt = snap.UpdatedAt.UTC().Format(time.RFC3339)
	}
	for _, d := range snap.Devices {
		inner.Devices = append(inner.Devices, DeviceJSON{
			ID:       d.ID,
			Name:     d.Name,
			Mode:     d.Mode,
			State:    d.State,
			On:       d.On,
			Position: d.Position,
			Severity: d.Severity.String(),
		})
	}
	for _, s := range snap.Sensors {
		inner.Sensors = append(inner.Sensors, SensorJSON{
			Name:     s.Name,
			State:    s.State,
			Value:    s.Value,
			Unit:     s.Unit,
			Severity: s.Severity.String(),
		})
	}
	for _, n := range snap.Notifications {
		inner.Notifications = append(inner.Notifications, NotificationJSON{
			ID:        n.ID,
			Device:    n.Device,
			Kind:      n.Kind,
			Severity:  n.Severity.String(),
			Message:   n.Message,
			Timestamp: n.Time.UTC().Format(time.RFC3339),
		})
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatCompact returns the single-line JSON status used for the retained
// MQTT status topic and the websocket push.
func FormatCompact(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
