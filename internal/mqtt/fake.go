package mqtt

import (
	"sync"

	"github.com/nunofsantos/coop-controller/internal/notify"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Alerts contains all notifications that were published.
	Alerts []notify.Notification

	// AlertPayloads contains the JSON payloads for alerts.
	AlertPayloads [][]byte

	// Statuses contains the status snapshots that were published.
	Statuses [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishAlertError, if set, will be returned by PublishAlert.
	PublishAlertError error

	// PublishStatusError, if set, will be returned by PublishStatus.
	PublishStatusError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishAlert records the notification.
func (f *FakePublisher) PublishAlert(n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishAlertError != nil {
		return f.PublishAlertError
	}

	payload, err := FormatAlertPayload(n)
	if err != nil {
		return err
	}
	f.Alerts = append(f.Alerts, n)
	f.AlertPayloads = append(f.AlertPayloads, payload)
	return nil
}

// PublishStatus records the snapshot.
func (f *FakePublisher) PublishStatus(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishStatusError != nil {
		return f.PublishStatusError
	}
	f.Statuses = append(f.Statuses, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// SystemEventNames returns the Event field of every recorded system event.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		out[i] = e.Event
	}
	return out
}

// StatusCount returns the number of published snapshots.
func (f *FakePublisher) StatusCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Statuses)
}

// AlertCount returns the number of published alerts.
func (f *FakePublisher) AlertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Alerts)
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Alerts = nil
	f.AlertPayloads = nil
	f.Statuses = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishAlertError = nil
	f.PublishStatusError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
