package notify

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry holds the active notifications of one device, at most one per
// kind. It is safe for concurrent use.
type Registry struct {
	device  string
	deliver Deliverer
	now     func() time.Time

	mu     sync.Mutex
	active map[string]Notification
}

// NewRegistry creates a standalone registry. Devices normally obtain theirs
// from Hub.Registry so they take part in the aggregate.
func NewRegistry(device string, d Deliverer, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		device:  device,
		deliver: d,
		now:     now,
		active:  make(map[string]Notification),
	}
}

// Device returns the name of the owning device.
func (r *Registry) Device() string {
	return r.device
}

// Raise clears every kind in k.Clears, then delivers a notification for k
// unless k is single and already active. It reports whether anything was
// delivered.
func (r *Registry) Raise(k Kind, args ...any) bool {
	r.mu.Lock()
	for _, name := range k.Clears {
		delete(r.active, name)
	}
	if _, ok := r.active[k.Name]; ok && k.Single {
		r.mu.Unlock()
		return false
	}

	n := Notification{
		ID:       uuid.NewString(),
		Device:   r.device,
		Kind:     k.Name,
		Severity: k.Severity,
		Message:  fmt.Sprintf(k.Template, args...),
		Time:     r.now(),
	}
	if k.AutoClear {
		delete(r.active, k.Name)
	} else {
		r.active[k.Name] = n
	}
	r.mu.Unlock()

	if r.deliver != nil {
		r.deliver.Deliver(n)
	}
	return true
}

// Clear removes the active notification of the named kind, if any.
func (r *Registry) Clear(names ...string) {
	r.mu.Lock()
	for _, name := range names {
		delete(r.active, name)
	}
	r.mu.Unlock()
}

// Active reports whether a notification of the named kind is active.
func (r *Registry) Active(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[name]
	return ok
}

// Status returns the worst active severity, or OK.
func (r *Registry) Status() Severity {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := OK
	for _, n := range r.active {
		s = Max(s, n.Severity)
	}
	return s
}

// Notifications returns the active notifications, worst first.
func (r *Registry) Notifications() []Notification {
	r.mu.Lock()
	out := make([]Notification, 0, len(r.active))
	for _, n := range r.active {
		out = append(out, n)
	}
	r.mu.Unlock()
	sortNotifications(out)
	return out
}

func sortNotifications(ns []Notification) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].Severity != ns[j].Severity {
			return ns[i].Severity > ns[j].Severity
		}
		if !ns[i].Time.Equal(ns[j].Time) {
			return ns[i].Time.Before(ns[j].Time)
		}
		if ns[i].Device != ns[j].Device {
			return ns[i].Device < ns[j].Device
		}
		return ns[i].Kind < ns[j].Kind
	})
}
