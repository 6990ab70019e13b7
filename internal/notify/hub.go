package notify

import (
	"sync"
	"time"
)

// Hub owns every device registry and computes the system-wide status.
type Hub struct {
	deliver Deliverer
	now     func() time.Time

	mu         sync.RWMutex
	registries []*Registry
}

// NewHub creates a hub whose registries deliver to d.
func NewHub(d Deliverer, now func() time.Time) *Hub {
	if now == nil {
		now = time.Now
	}
	return &Hub{deliver: d, now: now}
}

// Registry creates and registers a registry for device.
func (h *Hub) Registry(device string) *Registry {
	r := NewRegistry(device, h.deliver, h.now)
	h.mu.Lock()
	h.registries = append(h.registries, r)
	h.mu.Unlock()
	return r
}

// Aggregate returns the worst active severity across all registries, or OK
// when nothing is active.
func (h *Hub) Aggregate() Severity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := OK
	for _, r := range h.registries {
		s = Max(s, r.Status())
	}
	return s
}

// Active returns every active notification, worst first.
func (h *Hub) Active() []Notification {
	h.mu.RLock()
	var out []Notification
	for _, r := range h.registries {
		out = append(out, r.Notifications()...)
	}
	h.mu.RUnlock()
	sortNotifications(out)
	return out
}
