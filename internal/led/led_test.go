package led

import (
	"testing"

	"github.com/nunofsantos/coop-controller/internal/gpio"
	"github.com/nunofsantos/coop-controller/internal/notify"
)

var pins = Pins{Red: 13, Green: 19, Blue: 26}

func TestColorFor(t *testing.T) {
	tests := []struct {
		sev  notify.Severity
		want Color
	}{
		{notify.OK, Green},
		{notify.Info, Green},
		{notify.Manual, White},
		{notify.Warn, Blue},
		{notify.Error, Red},
	}
	for _, tt := range tests {
		if got := ColorFor(tt.sev); got != tt.want {
			t.Errorf("ColorFor(%v): got %s, want %s", tt.sev, got.Name, tt.want.Name)
		}
	}
}

func TestShow(t *testing.T) {
	port := gpio.NewFakePort()
	l, err := New(port, pins, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := l.Show(notify.Error); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if port.Level(13) != gpio.High || port.Level(19) != gpio.Low || port.Level(26) != gpio.Low {
		t.Errorf("red: got %v %v %v", port.Level(13), port.Level(19), port.Level(26))
	}

	l.Show(notify.Manual)
	if port.Level(13) != gpio.High || port.Level(19) != gpio.High || port.Level(26) != gpio.High {
		t.Errorf("white: got %v %v %v", port.Level(13), port.Level(19), port.Level(26))
	}

	writes := len(port.Writes)
	l.Show(notify.Manual)
	if len(port.Writes) != writes {
		t.Error("unchanged colour was rewritten")
	}

	l.Off()
	if l.Color() != Off {
		t.Errorf("color: got %s, want off", l.Color().Name)
	}
	for _, p := range []int{13, 19, 26} {
		if port.Level(p) != gpio.Low {
			t.Errorf("pin %d: got %v, want LOW", p, port.Level(p))
		}
	}
}

func TestActiveLow(t *testing.T) {
	port := gpio.NewFakePort()
	l, _ := New(port, pins, true)
	l.Show(notify.OK)
	if port.Level(19) != gpio.Low || port.Level(13) != gpio.High {
		t.Errorf("green active-low: red %v green %v", port.Level(13), port.Level(19))
	}
}
