package gpio

import (
	"fmt"
	"sync"
	"time"
)

// Write records a single FakePort.Write call.
type Write struct {
	Pin   int
	Level Level
}

// Wait records a single FakePort.WaitForEdge call.
type Wait struct {
	Pin     int
	Edge    Edge
	Timeout time.Duration
}

// FakePort is a test double with scripted input levels. WaitForEdge resolves
// immediately: a pin listed in Stuck times out, any other pin is moved to the
// edge's target level and reports success.
type FakePort struct {
	mu sync.Mutex

	// Levels holds the current level of every pin.
	Levels map[int]Level

	// Inputs and Outputs record declared pins and their setup.
	Inputs  map[int]InputOptions
	Outputs map[int]Level

	// Writes contains every Write call in order.
	Writes []Write

	// Waits contains every WaitForEdge call in order.
	Waits []Wait

	// Stuck pins never produce an edge.
	Stuck map[int]bool

	// ReadErrors, if set for a pin, is returned by Read.
	ReadErrors map[int]error

	// WriteErrors, if set for a pin, is returned by Write.
	WriteErrors map[int]error

	// OnWrite, if set, is called after every successful Write without the
	// port lock held.
	OnWrite func(pin int, level Level)

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePort creates an empty FakePort.
func NewFakePort() *FakePort {
	return &FakePort{
		Levels:      make(map[int]Level),
		Inputs:      make(map[int]InputOptions),
		Outputs:     make(map[int]Level),
		Stuck:       make(map[int]bool),
		ReadErrors:  make(map[int]error),
		WriteErrors: make(map[int]error),
	}
}

// SetupInput declares an input pin.
func (f *FakePort) SetupInput(pin int, opts InputOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Inputs[pin] = opts
	return nil
}

// SetupOutput declares an output pin and drives it to initial.
func (f *FakePort) SetupOutput(pin int, initial Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Outputs[pin] = initial
	f.Levels[pin] = initial
	return nil
}

// Set changes the level of a pin, as if the hardware moved.
func (f *FakePort) Set(pin int, level Level) {
	f.mu.Lock()
	f.Levels[pin] = level
	f.mu.Unlock()
}

// SetStuck marks a pin as never producing an edge.
func (f *FakePort) SetStuck(pin int, stuck bool) {
	f.mu.Lock()
	f.Stuck[pin] = stuck
	f.mu.Unlock()
}

// SetReadError makes Read on pin fail with err; nil clears it.
func (f *FakePort) SetReadError(pin int, err error) {
	f.mu.Lock()
	if err == nil {
		delete(f.ReadErrors, pin)
	} else {
		f.ReadErrors[pin] = err
	}
	f.mu.Unlock()
}

// Level returns the current level of a pin.
func (f *FakePort) Level(pin int) Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Levels[pin]
}

// Read returns the scripted level of a declared pin.
func (f *FakePort) Read(pin int) (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ReadErrors[pin]; err != nil {
		return Low, err
	}
	if !f.declared(pin) {
		return Low, fmt.Errorf("read pin %d: %w", pin, ErrNotConfigured)
	}
	return f.Levels[pin], nil
}

// Write records the call and sets the pin level.
func (f *FakePort) Write(pin int, level Level) error {
	f.mu.Lock()
	if err := f.WriteErrors[pin]; err != nil {
		f.mu.Unlock()
		return err
	}
	if _, ok := f.Outputs[pin]; !ok {
		f.mu.Unlock()
		return fmt.Errorf("write pin %d: %w", pin, ErrNotConfigured)
	}
	f.Writes = append(f.Writes, Write{Pin: pin, Level: level})
	f.Levels[pin] = level
	hook := f.OnWrite
	f.mu.Unlock()

	if hook != nil {
		hook(pin, level)
	}
	return nil
}

// WaitForEdge resolves immediately according to Stuck.
func (f *FakePort) WaitForEdge(pin int, edge Edge, timeout time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Waits = append(f.Waits, Wait{Pin: pin, Edge: edge, Timeout: timeout})
	if _, ok := f.Inputs[pin]; !ok {
		return false, fmt.Errorf("wait pin %d: %w", pin, ErrNotConfigured)
	}
	if f.Levels[pin] == edge.Target() {
		return true, nil
	}
	if f.Stuck[pin] {
		return false, nil
	}
	f.Levels[pin] = edge.Target()
	return true, nil
}

// WritesTo returns the levels written to pin, in order.
func (f *FakePort) WritesTo(pin int) []Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Level
	for _, w := range f.Writes {
		if w.Pin == pin {
			out = append(out, w.Level)
		}
	}
	return out
}

// Close marks the port as closed.
func (f *FakePort) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

func (f *FakePort) declared(pin int) bool {
	if _, ok := f.Inputs[pin]; ok {
		return true
	}
	_, ok := f.Outputs[pin]
	return ok
}
