// Package status provides a thread-safe status tracker for the coop controller.
// It is read by the HTTP handlers, the websocket push and the MQTT heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/nunofsantos/coop-controller/internal/notify"
)

// NetworkInfo contains network state as reported by the host helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Site        string
	PollMs      int64
	HeartbeatMs int64
	Units       string
	Broker      string
	HTTPAddr    string
}

// Device is the display view of one actuator.
type Device struct {
	ID       string
	Name     string
	Mode     string
	State    string
	On       bool
	Position string // door only
	Severity notify.Severity
}

// Sensor is the display view of one sensor.
type Sensor struct {
	Name     string
	State    string
	Value    *float64
	Unit     string
	Severity notify.Severity
}

// Coop is the part of the snapshot produced by one controller cycle.
type Coop struct {
	Severity      notify.Severity
	Indicator     string
	Day           string
	Sunrise       string
	Sunset        string
	Devices       []Device
	Sensors       []Sensor
	Notifications []notify.Notification
	UpdatedAt     time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Coop
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether at least one cycle has completed.
func (s Snapshot) Ready() bool {
	return !s.UpdatedAt.IsZero()
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	now func() time.Time

	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config. A nil
// now uses time.Now.
func NewTracker(startTime time.Time, cfg Config, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		now: now,
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update replaces the controller view. Called after every cycle and every
// operator action.
func (t *Tracker) Update(c Coop) {
	c.Devices = append([]Device(nil), c.Devices...)
	c.Sensors = append([]Sensor(nil), c.Sensors...)
	c.Notifications = append([]notify.Notification(nil), c.Notifications...)
	t.mu.Lock()
	t.snap.Coop = c
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
