// Package gpio provides digital I/O with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"time"
)

// Level is a raw digital level on a pin.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// Edge selects the transition WaitForEdge waits for.
type Edge int

const (
	Rising Edge = iota
	Falling
)

// Target returns the level a pin settles at after the edge.
func (e Edge) Target() Level {
	if e == Rising {
		return High
	}
	return Low
}

func (e Edge) String() string {
	if e == Rising {
		return "RISING"
	}
	return "FALLING"
}

// Pull is the bias applied to an input pin.
type Pull int

const (
	PullNone Pull = iota
	PullDown
	PullUp
)

// InputOptions configure an input pin.
type InputOptions struct {
	Pull     Pull
	Debounce time.Duration
}

// ErrNotConfigured is returned for operations on a pin that was never set up,
// or set up in the wrong direction.
var ErrNotConfigured = errors.New("gpio: pin not configured")

// Port is the digital I/O surface the controller drives. Pins must be
// declared with SetupInput or SetupOutput before use.
type Port interface {
	SetupInput(pin int, opts InputOptions) error
	SetupOutput(pin int, initial Level) error

	Read(pin int) (Level, error)
	Write(pin int, level Level) error

	// WaitForEdge blocks until the pin reaches the edge's target level or
	// the timeout elapses. A pin already at the target level returns true
	// immediately.
	WaitForEdge(pin int, edge Edge, timeout time.Duration) (bool, error)

	// Close releases all pins.
	Close() error
}
