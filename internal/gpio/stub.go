//go:build !linux

package gpio

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealPort is not available on non-Linux platforms.
type RealPort struct{}

// NewRealPort returns an error on non-Linux platforms.
func NewRealPort(chipName string) (*RealPort, error) {
	return nil, errUnsupported
}

func (p *RealPort) SetupInput(pin int, opts InputOptions) error { return errUnsupported }
func (p *RealPort) SetupOutput(pin int, initial Level) error    { return errUnsupported }
func (p *RealPort) Read(pin int) (Level, error)                 { return Low, errUnsupported }
func (p *RealPort) Write(pin int, level Level) error            { return errUnsupported }

func (p *RealPort) WaitForEdge(pin int, edge Edge, timeout time.Duration) (bool, error) {
	return false, errUnsupported
}

// Close is a no-op on non-Linux platforms.
func (p *RealPort) Close() error {
	return nil
}
