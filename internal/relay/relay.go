// Package relay drives a single relay channel on a GPIO output.
package relay

import (
	"fmt"
	"sync"

	"github.com/nunofsantos/coop-controller/internal/gpio"
)

// Relay is one relay channel. A Relay is owned by exactly one actuator.
type Relay struct {
	name    string
	pin     int
	port    gpio.Port
	on      gpio.Level
	off     gpio.Level
	initial gpio.Level

	mu    sync.Mutex
	level gpio.Level
}

// Levels returns the on/off output levels for a relay board. Most hobby
// boards energize the coil on a low output.
func Levels(activeLow bool) (on, off gpio.Level) {
	if activeLow {
		return gpio.Low, gpio.High
	}
	return gpio.High, gpio.Low
}

// New declares pin as an output at the off level, which is also the level
// Reset restores.
func New(name string, port gpio.Port, pin int, activeLow bool) (*Relay, error) {
	on, off := Levels(activeLow)
	if err := port.SetupOutput(pin, off); err != nil {
		return nil, fmt.Errorf("relay %s: %w", name, err)
	}
	return &Relay{
		name:    name,
		pin:     pin,
		port:    port,
		on:      on,
		off:     off,
		initial: off,
		level:   off,
	}, nil
}

// Name returns the relay's label.
func (r *Relay) Name() string { return r.name }

// Pin returns the output pin.
func (r *Relay) Pin() int { return r.pin }

// On energizes the relay.
func (r *Relay) On() error {
	return r.set(r.on)
}

// Off de-energizes the relay.
func (r *Relay) Off() error {
	return r.set(r.off)
}

// Reset restores the safe initial level.
func (r *Relay) Reset() error {
	return r.set(r.initial)
}

// IsOn reports whether the relay was last driven to its on level.
func (r *Relay) IsOn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.level == r.on
}

func (r *Relay) set(level gpio.Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.port.Write(r.pin, level); err != nil {
		return fmt.Errorf("relay %s: %w", r.name, err)
	}
	r.level = level
	return nil
}
