//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// edgeBuffer is the per-input queue of kernel edge events.
const edgeBuffer = 8

type inputLine struct {
	line  *gpiocdev.Line
	edges chan Edge
}

// RealPort drives pins on a Linux GPIO character device.
type RealPort struct {
	chip *gpiocdev.Chip

	mu      sync.Mutex
	inputs  map[int]*inputLine
	outputs map[int]*gpiocdev.Line
}

// NewRealPort opens the named chip, e.g. "gpiochip0".
func NewRealPort(chipName string) (*RealPort, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &RealPort{
		chip:    chip,
		inputs:  make(map[int]*inputLine),
		outputs: make(map[int]*gpiocdev.Line),
	}, nil
}

// SetupInput requests pin as an input with edge detection on both edges.
func (p *RealPort) SetupInput(pin int, opts InputOptions) error {
	in := &inputLine{edges: make(chan Edge, edgeBuffer)}

	lineOpts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			e := Falling
			if evt.Type == gpiocdev.LineEventRisingEdge {
				e = Rising
			}
			// drop rather than block the chip's event goroutine
			select {
			case in.edges <- e:
			default:
			}
		}),
	}
	switch opts.Pull {
	case PullDown:
		lineOpts = append(lineOpts, gpiocdev.WithPullDown)
	case PullUp:
		lineOpts = append(lineOpts, gpiocdev.WithPullUp)
	}
	if opts.Debounce > 0 {
		lineOpts = append(lineOpts, gpiocdev.WithDebounce(opts.Debounce))
	}

	line, err := p.chip.RequestLine(pin, lineOpts...)
	if err != nil {
		return fmt.Errorf("request input pin %d: %w", pin, err)
	}
	in.line = line

	p.mu.Lock()
	p.inputs[pin] = in
	p.mu.Unlock()
	return nil
}

// SetupOutput requests pin as an output driven to initial.
func (p *RealPort) SetupOutput(pin int, initial Level) error {
	line, err := p.chip.RequestLine(pin, gpiocdev.AsOutput(int(initial)))
	if err != nil {
		return fmt.Errorf("request output pin %d: %w", pin, err)
	}

	p.mu.Lock()
	p.outputs[pin] = line
	p.mu.Unlock()
	return nil
}

func (p *RealPort) line(pin int) (*gpiocdev.Line, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if in, ok := p.inputs[pin]; ok {
		return in.line, true
	}
	l, ok := p.outputs[pin]
	return l, ok
}

// Read returns the current level of an input or output pin.
func (p *RealPort) Read(pin int) (Level, error) {
	l, ok := p.line(pin)
	if !ok {
		return Low, fmt.Errorf("read pin %d: %w", pin, ErrNotConfigured)
	}
	v, err := l.Value()
	if err != nil {
		return Low, fmt.Errorf("read pin %d: %w", pin, err)
	}
	if v != 0 {
		return High, nil
	}
	return Low, nil
}

// Write drives an output pin.
func (p *RealPort) Write(pin int, level Level) error {
	p.mu.Lock()
	l, ok := p.outputs[pin]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("write pin %d: %w", pin, ErrNotConfigured)
	}
	if err := l.SetValue(int(level)); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// WaitForEdge waits for edge on an input pin.
func (p *RealPort) WaitForEdge(pin int, edge Edge, timeout time.Duration) (bool, error) {
	p.mu.Lock()
	in, ok := p.inputs[pin]
	p.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("wait pin %d: %w", pin, ErrNotConfigured)
	}

	// Discard events queued before this call.
	for drained := false; !drained; {
		select {
		case <-in.edges:
		default:
			drained = true
		}
	}

	// The transition may have happened before the queue was drained.
	lvl, err := p.Read(pin)
	if err != nil {
		return false, err
	}
	if lvl == edge.Target() {
		return true, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case e := <-in.edges:
			if e == edge {
				return true, nil
			}
		case <-timer.C:
			return false, nil
		}
	}
}

// Close releases GPIO resources. Outputs are reconfigured as pulled-down
// inputs (the Pi boot default) before being released.
func (p *RealPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for pin, in := range p.inputs {
		if err := in.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input pin %d: %w", pin, err))
		}
	}
	for pin, l := range p.outputs {
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output pin %d: %w", pin, err))
		}
	}
	p.inputs = map[int]*inputLine{}
	p.outputs = map[int]*gpiocdev.Line{}

	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
