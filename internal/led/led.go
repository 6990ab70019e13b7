// Package led drives the RGB status indicator.
package led

import (
	"errors"
	"sync"

	"github.com/nunofsantos/coop-controller/internal/gpio"
	"github.com/nunofsantos/coop-controller/internal/notify"
	"github.com/nunofsantos/coop-controller/internal/relay"
)

// Color is a combination of the three channels.
type Color struct {
	Name             string
	Red, Green, Blue bool
}

var (
	Off   = Color{Name: "off"}
	Red   = Color{Name: "red", Red: true}
	Green = Color{Name: "green", Green: true}
	Blue  = Color{Name: "blue", Blue: true}
	White = Color{Name: "white", Red: true, Green: true, Blue: true}
)

// ColorFor maps a system severity to the indicator colour.
func ColorFor(s notify.Severity) Color {
	switch {
	case s >= notify.Error:
		return Red
	case s >= notify.Warn:
		return Blue
	case s >= notify.Manual:
		return White
	}
	return Green
}

// Pins are the three output pins.
type Pins struct {
	Red, Green, Blue int
}

// RGB is a common-anode or common-cathode RGB LED on three outputs.
type RGB struct {
	r, g, b *relay.Relay

	mu    sync.Mutex
	color Color
}

// New declares the three outputs, all dark.
func New(port gpio.Port, pins Pins, activeLow bool) (*RGB, error) {
	r, err := relay.New("led red", port, pins.Red, activeLow)
	if err != nil {
		return nil, err
	}
	g, err := relay.New("led green", port, pins.Green, activeLow)
	if err != nil {
		return nil, err
	}
	b, err := relay.New("led blue", port, pins.Blue, activeLow)
	if err != nil {
		return nil, err
	}
	return &RGB{r: r, g: g, b: b, color: Off}, nil
}

// Set shows c. Unchanged colours are not rewritten.
func (l *RGB) Set(c Color) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c == l.color {
		return nil
	}
	err := errors.Join(
		channel(l.r, c.Red),
		channel(l.g, c.Green),
		channel(l.b, c.Blue),
	)
	if err == nil {
		l.color = c
	}
	return err
}

func channel(r *relay.Relay, on bool) error {
	if on {
		return r.On()
	}
	return r.Off()
}

// Show displays the colour for severity s.
func (l *RGB) Show(s notify.Severity) error {
	return l.Set(ColorFor(s))
}

// Off turns every channel off.
func (l *RGB) Off() error {
	return l.Set(Off)
}

// Color returns the colour last shown.
func (l *RGB) Color() Color {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.color
}
