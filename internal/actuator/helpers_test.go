package actuator

import (
	"errors"
	"testing"
	"time"

	"github.com/nunofsantos/coop-controller/internal/gpio"
	"github.com/nunofsantos/coop-controller/internal/notify"
	"github.com/nunofsantos/coop-controller/internal/relay"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

var errHardware = errors.New("hardware fault")

func fixedNow() time.Time { return t0 }

func newNotes(device string) (*notify.Registry, *notify.FakeSink) {
	sink := notify.NewFakeSink()
	return notify.NewRegistry(device, sink.Deliverer(), fixedNow), sink
}

func newRelay(t *testing.T, port *gpio.FakePort, name string, pin int) *relay.Relay {
	t.Helper()
	r, err := relay.New(name, port, pin, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

func temp(v float64) *float64 { return &v }
