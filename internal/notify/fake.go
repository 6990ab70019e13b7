package notify

import "sync"

// FakeSink records delivered notifications for test assertions. It
// implements both Sink and Deliverer.
type FakeSink struct {
	mu sync.Mutex

	// Delivered contains every notification in delivery order.
	Delivered []Notification

	// Err, if set, is returned by Deliver after recording.
	Err error
}

// NewFakeSink creates an empty FakeSink.
func NewFakeSink() *FakeSink {
	return &FakeSink{}
}

// Deliver records n.
func (f *FakeSink) Deliver(n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Delivered = append(f.Delivered, n)
	return f.Err
}

// Deliverer adapts the sink to the Deliverer interface.
func (f *FakeSink) Deliverer() Deliverer {
	return DelivererFunc(func(n Notification) { f.Deliver(n) })
}

// Count returns how many notifications of the named kind were delivered.
func (f *FakeSink) Count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := 0
	for _, n := range f.Delivered {
		if n.Kind == kind {
			c++
		}
	}
	return c
}

// Kinds returns the delivered kind names in order.
func (f *FakeSink) Kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Delivered))
	for i, n := range f.Delivered {
		out[i] = n.Kind
	}
	return out
}

// Last returns the most recent notification, if any.
func (f *FakeSink) Last() (Notification, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Delivered) == 0 {
		return Notification{}, false
	}
	return f.Delivered[len(f.Delivered)-1], true
}

// Reset clears recorded notifications.
func (f *FakeSink) Reset() {
	f.mu.Lock()
	f.Delivered = nil
	f.mu.Unlock()
}
