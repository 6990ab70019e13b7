package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nunofsantos/coop-controller/internal/notify"
)

// fakeTwilight answers 07:00 and 17:00 UTC on the requested date.
type fakeTwilight struct {
	calls int
	err   error
}

func (f *fakeTwilight) Twilight(ctx context.Context, lat, lon float64, date time.Time) (time.Time, time.Time, error) {
	f.calls++
	if f.err != nil {
		return time.Time{}, time.Time{}, f.err
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, 7, 0, 0, 0, time.UTC), time.Date(y, m, d, 17, 0, 0, 0, time.UTC), nil
}

func newSun(clk *testClock, src TwilightSource) (*SunSensor, *notify.Registry, *notify.FakeSink) {
	notes, sink := newNotes("sun", clk)
	s := NewSunSensor(SunConfig{
		Name:         "sun",
		Latitude:     42.36,
		Longitude:    -71.06,
		ExtraSunrise: 30 * time.Minute,
		ExtraSunset:  30 * time.Minute,
		Retry:        15 * time.Minute,
		Location:     time.UTC,
	}, src, notes, nil, clk.now)
	return s, notes, sink
}

func TestSunSensorDayNight(t *testing.T) {
	clk := newTestClock()
	src := &fakeTwilight{}
	s, _, sink := newSun(clk, src)

	if got := s.ReadAndCheck(context.Background()); got != Day {
		t.Fatalf("noon: got %q, want day", got)
	}
	if len(sink.Delivered) != 0 {
		t.Errorf("first check should not notify, got %v", sink.Kinds())
	}

	clk.set(time.Date(2026, 1, 1, 17, 20, 0, 0, time.UTC))
	if got := s.ReadAndCheck(context.Background()); got != Day {
		t.Fatalf("before shifted sunset: got %q, want day", got)
	}

	clk.set(time.Date(2026, 1, 1, 17, 31, 0, 0, time.UTC))
	if got := s.ReadAndCheck(context.Background()); got != Night {
		t.Fatalf("after shifted sunset: got %q, want night", got)
	}
	last, _ := sink.Last()
	if last.Kind != "sunset" || last.Message != "sunset at 17:30" {
		t.Errorf("sunset notification: got %+v", last)
	}
	if src.calls != 1 {
		t.Errorf("lookups: got %d, want 1", src.calls)
	}

	clk.set(time.Date(2026, 1, 2, 7, 31, 0, 0, time.UTC))
	if got := s.ReadAndCheck(context.Background()); got != Day {
		t.Fatalf("next morning: got %q, want day", got)
	}
	if src.calls != 2 {
		t.Errorf("lookups: got %d, want 2", src.calls)
	}
	if n := sink.Count("sunrise"); n != 1 {
		t.Errorf("sunrise delivered %d times, want 1", n)
	}
}

func TestSunSensorDescribe(t *testing.T) {
	clk := newTestClock()
	s, _, _ := newSun(clk, &fakeTwilight{})

	if rise, set := s.Describe(); rise != "" || set != "" {
		t.Errorf("before read: got %q %q, want empty", rise, set)
	}
	s.ReadAndCheck(context.Background())
	rise, set := s.Describe()
	if rise != "07:30 [+30min]" {
		t.Errorf("sunrise: got %q", rise)
	}
	if set != "17:30 [+30min]" {
		t.Errorf("sunset: got %q", set)
	}
}

func TestSunSensorLookupFailure(t *testing.T) {
	clk := newTestClock()
	src := &fakeTwilight{err: errors.New("connection refused")}
	s, notes, sink := newSun(clk, src)

	if err := s.Read(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !notes.Active("lookup_failed") {
		t.Error("lookup_failed not active")
	}
	if got := s.Check(); got != DayInvalid {
		t.Errorf("got %q, want invalid", got)
	}
	if !notes.Active("day_invalid") {
		t.Error("day_invalid not active")
	}

	clk.advance(5 * time.Minute)
	s.ReadAndCheck(context.Background())
	if src.calls != 1 {
		t.Errorf("retried too early: %d lookups", src.calls)
	}

	src.err = nil
	clk.advance(15 * time.Minute)
	if got := s.ReadAndCheck(context.Background()); got != Day {
		t.Fatalf("after retry: got %q, want day", got)
	}
	if src.calls != 2 {
		t.Errorf("lookups: got %d, want 2", src.calls)
	}
	if notes.Status() != notify.OK {
		t.Errorf("status: got %v, want OK", notes.Status())
	}
	if n := sink.Count("lookup_failed"); n != 1 {
		t.Errorf("lookup_failed delivered %d times, want 1", n)
	}
}

func TestSunSensorUsesYesterdayCache(t *testing.T) {
	clk := newTestClock()
	src := &fakeTwilight{}
	s, _, _ := newSun(clk, src)
	s.ReadAndCheck(context.Background())

	src.err = errors.New("timeout")
	clk.set(time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC))
	if got := s.ReadAndCheck(context.Background()); got != Day {
		t.Fatalf("with yesterday's data: got %q, want day", got)
	}
	rise, _, ok := s.Times()
	if !ok || !rise.Equal(time.Date(2026, 1, 2, 7, 30, 0, 0, time.UTC)) {
		t.Errorf("shifted sunrise: got %v %v", rise, ok)
	}

	clk.set(time.Date(2026, 1, 3, 12, 0, 0, 0, time.UTC))
	if got := s.ReadAndCheck(context.Background()); got != DayInvalid {
		t.Errorf("with two-day-old data: got %q, want invalid", got)
	}
}
