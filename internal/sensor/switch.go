package sensor

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nunofsantos/coop-controller/internal/gpio"
	"github.com/nunofsantos/coop-controller/internal/notify"
)

// Contact is the electrical state of a switch. Inputs are pulled down, so a
// closed contact reads high.
type Contact string

const (
	ContactOpen    Contact = "open"
	ContactClosed  Contact = "closed"
	ContactUnknown Contact = "unknown"
)

func contactOf(l gpio.Level) Contact {
	if l == gpio.High {
		return ContactClosed
	}
	return ContactOpen
}

func edgeTo(c Contact) gpio.Edge {
	if c == ContactClosed {
		return gpio.Rising
	}
	return gpio.Falling
}

var (
	kindSwitchReadFailed = notify.Kind{
		Name:     "read_failed",
		Severity: notify.Warn,
		Template: "%s - unable to read switch: %v",
		Single:   true,
	}
	kindSwitchWaitFailed = notify.Kind{
		Name:      "wait_failed",
		Severity:  notify.Error,
		Template:  "%s - failed to wait for switch to be %s",
		Single:    true,
		AutoClear: true,
	}
)

// SwitchConfig describes a contact switch input.
type SwitchConfig struct {
	Name string
	Pin  int
	// NormallyClosed switches open their contact when actuated.
	NormallyClosed bool
	Timeout        time.Duration
	Debounce       time.Duration
}

// SwitchSensor reads a contact switch and can block waiting for it to change.
type SwitchSensor struct {
	cfg    SwitchConfig
	port   gpio.Port
	notes  *notify.Registry
	logger *zap.Logger

	mu      sync.Mutex
	contact Contact
}

// NewSwitchSensor declares the input pin, pulled down.
func NewSwitchSensor(cfg SwitchConfig, port gpio.Port, notes *notify.Registry, logger *zap.Logger) (*SwitchSensor, error) {
	err := port.SetupInput(cfg.Pin, gpio.InputOptions{Pull: gpio.PullDown, Debounce: cfg.Debounce})
	if err != nil {
		return nil, fmt.Errorf("switch %s: %w", cfg.Name, err)
	}
	return &SwitchSensor{
		cfg:     cfg,
		port:    port,
		notes:   notes,
		logger:  logger,
		contact: ContactUnknown,
	}, nil
}

// Name returns the switch label.
func (s *SwitchSensor) Name() string { return s.cfg.Name }

// Read samples the pin. A failure leaves the contact unknown.
func (s *SwitchSensor) Read() (Contact, error) {
	lvl, err := s.port.Read(s.cfg.Pin)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.contact = ContactUnknown
		s.notes.Raise(kindSwitchReadFailed, s.cfg.Name, err)
		return ContactUnknown, fmt.Errorf("%s: %w", s.cfg.Name, err)
	}
	s.contact = contactOf(lvl)
	s.notes.Clear(kindSwitchReadFailed.Name)
	return s.contact, nil
}

// Check returns the contact from the last read.
func (s *SwitchSensor) Check() Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contact
}

// ReadAndCheck reads, logging any failure, and returns the contact.
func (s *SwitchSensor) ReadAndCheck() Contact {
	c, err := s.Read()
	if err != nil && s.logger != nil {
		s.logger.Warn("switch read failed", zap.String("sensor", s.cfg.Name), zap.Error(err))
	}
	return c
}

// TrippedContact is the contact state of an actuated switch.
func (s *SwitchSensor) TrippedContact() Contact {
	if s.cfg.NormallyClosed {
		return ContactOpen
	}
	return ContactClosed
}

// ReleasedContact is the contact state of a switch at rest.
func (s *SwitchSensor) ReleasedContact() Contact {
	if s.cfg.NormallyClosed {
		return ContactClosed
	}
	return ContactOpen
}

// Tripped reports whether the last read saw the switch actuated.
func (s *SwitchSensor) Tripped() bool {
	return s.Check() == s.TrippedContact()
}

// WaitFor blocks until the contact reaches target or timeout elapses; a
// timeout of zero or less uses the configured one. A switch already at
// target returns true at once. On timeout a single auto-clearing ERROR is
// raised and false returned.
func (s *SwitchSensor) WaitFor(target Contact, timeout time.Duration) bool {
	if c, err := s.Read(); err == nil && c == target {
		return true
	}
	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}

	ok, err := s.port.WaitForEdge(s.cfg.Pin, edgeTo(target), timeout)
	if err != nil && s.logger != nil {
		s.logger.Error("switch wait failed", zap.String("sensor", s.cfg.Name), zap.Error(err))
	}
	if err != nil || !ok {
		s.notes.Raise(kindSwitchWaitFailed, s.cfg.Name, target)
		return false
	}

	s.mu.Lock()
	s.contact = target
	s.mu.Unlock()
	return true
}

// WaitForTripped waits up to the configured timeout for the switch to be
// actuated (true) or released.
func (s *SwitchSensor) WaitForTripped(tripped bool) bool {
	if tripped {
		return s.WaitFor(s.TrippedContact(), s.cfg.Timeout)
	}
	return s.WaitFor(s.ReleasedContact(), s.cfg.Timeout)
}
