package sensor

import (
	"errors"
	"sync"
	"time"

	"github.com/nunofsantos/coop-controller/internal/notify"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

var errHardware = errors.New("hardware fault")

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock { return &testClock{t: t0} }

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *testClock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newNotes(device string, clk *testClock) (*notify.Registry, *notify.FakeSink) {
	sink := notify.NewFakeSink()
	return notify.NewRegistry(device, sink.Deliverer(), clk.now), sink
}

type fakeTempReader struct {
	c   float64
	err error
}

func (f *fakeTempReader) ReadTemp() (float64, error) { return f.c, f.err }

type fakeClimate struct {
	c, h float64
	err  error
}

func (f *fakeClimate) ReadClimate() (float64, float64, error) { return f.c, f.h, f.err }
