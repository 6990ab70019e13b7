package coop

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/nunofsantos/coop-controller/internal/actuator"
	"github.com/nunofsantos/coop-controller/internal/config"
	"github.com/nunofsantos/coop-controller/internal/envlog"
	"github.com/nunofsantos/coop-controller/internal/gpio"
	"github.com/nunofsantos/coop-controller/internal/notify"
	"github.com/nunofsantos/coop-controller/internal/status"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

const (
	heaterPin = 17
	halfPin   = 23
	emptyPin  = 24
	lightPin  = 18
	openPin   = 22
	closePin  = 27
	topPin    = 5
	bottomPin = 6
	redPin    = 13
	greenPin  = 19
	bluePin   = 26
)

// fakeTwilight reports 07:00 and 17:00 UTC on the requested date.
type fakeTwilight struct {
	err   error
	calls int
}

func (f *fakeTwilight) Twilight(_ context.Context, _, _ float64, date time.Time) (time.Time, time.Time, error) {
	f.calls++
	if f.err != nil {
		return time.Time{}, time.Time{}, f.err
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, 7, 0, 0, 0, time.UTC), time.Date(y, m, d, 17, 0, 0, 0, time.UTC), nil
}

type fakeClimate struct {
	tempC, humidity float64
	err             error
}

func (f *fakeClimate) ReadClimate() (float64, float64, error) {
	return f.tempC, f.humidity, f.err
}

type fakeTemp struct {
	c   float64
	err error
}

func (f *fakeTemp) ReadTemp() (float64, error) {
	return f.c, f.err
}

type memStore struct {
	mu       sync.Mutex
	readings []envlog.Reading
}

func (m *memStore) Write(_ context.Context, r envlog.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, r)
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) value(k envlog.Kind) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.readings {
		if r.Kind == k {
			return r.Value, true
		}
	}
	return 0, false
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type rig struct {
	coop     *Coop
	port     *gpio.FakePort
	sink     *notify.FakeSink
	twilight *fakeTwilight
	climate  *fakeClimate
	water    *fakeTemp
	store    *memStore
	clock    *clock
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Site.Timezone = "UTC"
	cfg.Main.RelayActiveLow = false
	return cfg
}

func newRig(t *testing.T, cfg *config.Config) *rig {
	t.Helper()
	r := &rig{
		port:     gpio.NewFakePort(),
		sink:     notify.NewFakeSink(),
		twilight: &fakeTwilight{},
		climate:  &fakeClimate{tempC: 20, humidity: 50},
		water:    &fakeTemp{c: 15},
		store:    &memStore{},
		clock:    &clock{t: t0},
	}
	c, err := New(cfg, Deps{
		Port:      r.port,
		Twilight:  r.twilight,
		Climate:   r.climate,
		WaterTemp: r.water,
		Recorder:  envlog.NewRecorder(r.store, 15*time.Minute, nil, r.clock.now),
		Deliverer: r.sink.Deliverer(),
		Now:       r.clock.now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r.coop = c
	r.setWater(true, true)
	r.setDoorClosed()
	return r
}

func (r *rig) setWater(half, empty bool) {
	lvl := func(submerged bool) gpio.Level {
		if submerged {
			return gpio.High
		}
		return gpio.Low
	}
	r.port.Set(halfPin, lvl(half))
	r.port.Set(emptyPin, lvl(empty))
}

// Door switches are normally closed: the tripped one reads LOW.
func (r *rig) setDoorClosed() {
	r.port.Set(topPin, gpio.High)
	r.port.Set(bottomPin, gpio.Low)
}

func (r *rig) setDoorOpen() {
	r.port.Set(topPin, gpio.Low)
	r.port.Set(bottomPin, gpio.High)
}

func device(t *testing.T, s status.Coop, id string) status.Device {
	t.Helper()
	for _, d := range s.Devices {
		if d.ID == id {
			return d
		}
	}
	t.Fatalf("device %q not in status", id)
	return status.Device{}
}

func TestNewRequiresHardware(t *testing.T) {
	if _, err := New(testConfig(), Deps{Twilight: &fakeTwilight{}}); err == nil {
		t.Error("expected error without a gpio port")
	}
	if _, err := New(testConfig(), Deps{Port: gpio.NewFakePort(), Twilight: &fakeTwilight{}}); err == nil {
		t.Error("expected error with ambient enabled and no climate reader")
	}
}

func TestNewDeclaresPins(t *testing.T) {
	r := newRig(t, testConfig())
	for _, pin := range []int{heaterPin, lightPin, openPin, closePin, redPin, greenPin, bluePin} {
		lvl, ok := r.port.Outputs[pin]
		if !ok {
			t.Errorf("pin %d not declared as output", pin)
			continue
		}
		if lvl != gpio.Low {
			t.Errorf("pin %d initial level: got %v, want LOW", pin, lvl)
		}
	}
	for _, pin := range []int{halfPin, emptyPin, topPin, bottomPin} {
		if _, ok := r.port.Inputs[pin]; !ok {
			t.Errorf("pin %d not declared as input", pin)
		}
	}
	if got := r.port.Inputs[topPin].Debounce; got != 50*time.Millisecond {
		t.Errorf("door switch debounce: got %v, want 50ms", got)
	}
}

func TestCycleDaytime(t *testing.T) {
	r := newRig(t, testConfig())

	s := r.coop.Cycle(context.Background())

	if s.Day != "day" {
		t.Errorf("Day: got %q, want day", s.Day)
	}
	if s.Sunrise != "07:30 [+30min]" || s.Sunset != "17:30 [+30min]" {
		t.Errorf("sun times: got %q/%q", s.Sunrise, s.Sunset)
	}

	wh := device(t, s, "water-heater")
	if !wh.On || wh.State != "auto-on" {
		t.Errorf("water heater: got on=%v state=%q, want on auto-on", wh.On, wh.State)
	}
	if r.port.Level(heaterPin) != gpio.High {
		t.Errorf("heater relay: got %v, want HIGH", r.port.Level(heaterPin))
	}

	door := device(t, s, "door")
	if door.Position != "open" || door.State != string(actuator.DoorAutoOpenDay) {
		t.Errorf("door: got %q/%q, want open/%s", door.Position, door.State, actuator.DoorAutoOpenDay)
	}
	if r.port.Level(openPin) != gpio.Low || r.port.Level(closePin) != gpio.Low {
		t.Error("door drive relays should be off after the drive")
	}

	light := device(t, s, "light")
	if light.On {
		t.Error("light should be off by day")
	}

	if s.Severity != notify.OK {
		t.Errorf("Severity: got %v, want OK; active %+v", s.Severity, s.Notifications)
	}
	if s.Indicator != "green" {
		t.Errorf("Indicator: got %q, want green", s.Indicator)
	}
	if r.port.Level(greenPin) != gpio.High || r.port.Level(redPin) != gpio.Low {
		t.Error("indicator pins should show green")
	}
	if !s.UpdatedAt.Equal(t0) {
		t.Errorf("UpdatedAt: got %v, want %v", s.UpdatedAt, t0)
	}

	if n := r.sink.Count("turned_on"); n != 1 {
		t.Errorf("turned_on notifications: got %d, want 1", n)
	}
	if n := r.sink.Count("opened"); n != 1 {
		t.Errorf("opened notifications: got %d, want 1", n)
	}
}

func TestCycleSensorsInStatus(t *testing.T) {
	r := newRig(t, testConfig())
	s := r.coop.Cycle(context.Background())

	want := map[string]struct {
		state string
		value float64
	}{
		"coop temperature":  {"ok", 68},
		"coop humidity":     {"ok", 50},
		"water temperature": {"ok", 59},
	}
	for _, sn := range s.Sensors {
		w, ok := want[sn.Name]
		if !ok {
			continue
		}
		delete(want, sn.Name)
		if sn.State != w.state {
			t.Errorf("%s state: got %q, want %q", sn.Name, sn.State, w.state)
		}
		if sn.Value == nil || math.Abs(*sn.Value-w.value) > 1e-9 {
			t.Errorf("%s value: got %v, want %v", sn.Name, sn.Value, w.value)
		}
	}
	for name := range want {
		t.Errorf("sensor %q missing from status", name)
	}
}

func TestCycleNightClosesDoorAndLightsCoop(t *testing.T) {
	r := newRig(t, testConfig())
	r.setDoorOpen()
	r.clock.set(time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC))

	s := r.coop.Cycle(context.Background())

	if s.Day != "night" {
		t.Fatalf("Day: got %q, want night", s.Day)
	}
	door := device(t, s, "door")
	if door.Position != "closed" || door.State != string(actuator.DoorAutoClosedNight) {
		t.Errorf("door: got %q/%q", door.Position, door.State)
	}
	if !device(t, s, "light").On {
		t.Error("light should be on at night")
	}
}

func TestCycleWaterEmptyInhibitsHeater(t *testing.T) {
	r := newRig(t, testConfig())
	r.coop.Cycle(context.Background())

	r.setWater(false, false)
	s := r.coop.Cycle(context.Background())

	wh := device(t, s, "water-heater")
	if wh.On {
		t.Error("water heater should be held off with an empty tank")
	}
	if wh.Severity != notify.Error {
		t.Errorf("water heater severity: got %v, want ERROR", wh.Severity)
	}
	if s.Severity != notify.Error || s.Indicator != "red" {
		t.Errorf("system: got %v/%q, want ERROR/red", s.Severity, s.Indicator)
	}
	if r.port.Level(redPin) != gpio.High || r.port.Level(greenPin) != gpio.Low {
		t.Error("indicator pins should show red")
	}

	if err := r.coop.SetPower("water-heater", true); !errors.Is(err, actuator.ErrInhibited) {
		t.Errorf("SetPower on inhibited heater: got %v, want ErrInhibited", err)
	}
}

func TestCycleRecordsEnvironment(t *testing.T) {
	r := newRig(t, testConfig())
	r.coop.Cycle(context.Background())

	for kind, want := range map[envlog.Kind]float64{
		envlog.AmbientTemp:     68,
		envlog.AmbientHumidity: 50,
		envlog.WaterTemp:       59,
	} {
		got, ok := r.store.value(kind)
		if !ok {
			t.Errorf("%s not recorded", kind)
			continue
		}
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("%s: got %v, want %v", kind, got, want)
		}
	}

	// A second cycle inside the interval writes nothing new.
	n := len(r.store.readings)
	r.clock.set(t0.Add(time.Minute))
	r.coop.Cycle(context.Background())
	if len(r.store.readings) != n {
		t.Errorf("readings: got %d, want %d", len(r.store.readings), n)
	}
}

func TestCycleAmbientDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Ambient.Enabled = false
	r := newRig(t, cfg)
	s := r.coop.Cycle(context.Background())

	for _, sn := range s.Sensors {
		if sn.Name == "coop temperature" || sn.Name == "coop humidity" {
			t.Errorf("disabled sensor %q in status", sn.Name)
		}
	}
	if _, ok := r.store.value(envlog.AmbientTemp); ok {
		t.Error("ambient temperature recorded with the sensor disabled")
	}
}

func TestCycleOptionalDevices(t *testing.T) {
	cfg := testConfig()
	cfg.Heater.Enabled = true
	cfg.Fan.Enabled = true
	r := newRig(t, cfg)
	r.climate.tempC = -5 // 23F, below the heater minimum

	s := r.coop.Cycle(context.Background())
	if !device(t, s, "heater").On {
		t.Error("heater should be on in the cold")
	}
	if device(t, s, "fan").On {
		t.Error("fan should be off in the cold")
	}
}

func TestCycleSunLookupFailure(t *testing.T) {
	r := newRig(t, testConfig())
	r.twilight.err = errors.New("dns failure")

	s := r.coop.Cycle(context.Background())
	if s.Day != "invalid" {
		t.Errorf("Day: got %q, want invalid", s.Day)
	}
	if s.Severity != notify.Warn || s.Indicator != "blue" {
		t.Errorf("system: got %v/%q, want WARN/blue", s.Severity, s.Indicator)
	}
	// Unknown day is treated as night for the door.
	if got := device(t, s, "door").Position; got != "closed" {
		t.Errorf("door: got %q, want closed", got)
	}
}

func TestCycleDoorTimeout(t *testing.T) {
	r := newRig(t, testConfig())
	r.port.SetStuck(topPin, true)

	s := r.coop.Cycle(context.Background())
	door := device(t, s, "door")
	if door.Mode != "manual" || door.State != string(actuator.DoorManualInvalid) {
		t.Errorf("door: got %q/%q, want manual/%s", door.Mode, door.State, actuator.DoorManualInvalid)
	}
	if s.Severity != notify.Error {
		t.Errorf("Severity: got %v, want ERROR", s.Severity)
	}
	if r.port.Level(openPin) != gpio.Low {
		t.Error("open relay should be off after a failed drive")
	}
}

func TestControlSurfaceErrors(t *testing.T) {
	r := newRig(t, testConfig())

	if err := r.coop.SetMode("pump", "auto"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("SetMode unknown: got %v, want ErrUnknownDevice", err)
	}
	if err := r.coop.SetMode("light", "party"); !errors.Is(err, actuator.ErrInvalidMode) {
		t.Errorf("SetMode invalid: got %v, want ErrInvalidMode", err)
	}
	if err := r.coop.SetPower("pump", true); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("SetPower unknown: got %v, want ErrUnknownDevice", err)
	}
	if err := r.coop.SetPower("door", true); !errors.Is(err, ErrUnsupported) {
		t.Errorf("SetPower door: got %v, want ErrUnsupported", err)
	}
	if err := r.coop.SetPower("heater", true); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("SetPower disabled heater: got %v, want ErrUnknownDevice", err)
	}
	if err := r.coop.DoorAction("wiggle"); !errors.Is(err, actuator.ErrInvalidAction) {
		t.Errorf("DoorAction invalid: got %v, want ErrInvalidAction", err)
	}
	if got := device(t, r.coop.Status(), "door").Mode; got != "auto" {
		t.Errorf("invalid door action changed mode to %q", got)
	}
}

func TestSetModeAndPower(t *testing.T) {
	r := newRig(t, testConfig())
	r.coop.Cycle(context.Background())

	if err := r.coop.SetPower("LIGHT", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := r.coop.Status()
	light := device(t, s, "light")
	if !light.On || light.State != "manual-on" {
		t.Errorf("light: got on=%v state=%q, want manual-on", light.On, light.State)
	}
	if s.Severity != notify.Manual || s.Indicator != "white" {
		t.Errorf("system: got %v/%q, want MANUAL/white", s.Severity, s.Indicator)
	}

	// A cycle by day leaves the manual light alone.
	s = r.coop.Cycle(context.Background())
	if !device(t, s, "light").On {
		t.Error("cycle overrode the manual light")
	}

	if err := r.coop.SetMode("light", "auto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s = r.coop.Cycle(context.Background())
	if device(t, s, "light").On {
		t.Error("re-armed light should turn off by day")
	}
	if s.Severity != notify.OK {
		t.Errorf("Severity: got %v, want OK", s.Severity)
	}
}

func TestDoorActionForcesManual(t *testing.T) {
	r := newRig(t, testConfig())
	r.coop.Cycle(context.Background())

	if err := r.coop.DoorAction("close"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := r.coop.Status()
	door := device(t, s, "door")
	if door.Mode != "manual" || door.Position != "closed" {
		t.Errorf("door: got %q/%q, want manual/closed", door.Mode, door.Position)
	}

	// Closed during the day in manual is a warning on the next cycle.
	s = r.coop.Cycle(context.Background())
	if s.Severity != notify.Warn {
		t.Errorf("Severity: got %v, want WARN", s.Severity)
	}
	if r.sink.Count("closed_day") != 1 {
		t.Errorf("closed_day notifications: got %d, want 1", r.sink.Count("closed_day"))
	}

	if err := r.coop.SetMode("door", "auto"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s = r.coop.Cycle(context.Background())
	if got := device(t, s, "door").Position; got != "open" {
		t.Errorf("re-armed door: got %q, want open", got)
	}
}

func TestDoorActionTimeout(t *testing.T) {
	r := newRig(t, testConfig())
	r.setDoorOpen()
	r.port.SetStuck(bottomPin, true)

	err := r.coop.DoorAction("close")
	if !errors.Is(err, actuator.ErrDriveFailed) {
		t.Fatalf("DoorAction: got %v, want ErrDriveFailed", err)
	}
	if r.coop.Status().Indicator != "red" {
		t.Errorf("Indicator: got %q, want red", r.coop.Status().Indicator)
	}
}

func TestDoorDriveDoesNotStallOtherDevices(t *testing.T) {
	r := newRig(t, testConfig())

	entered := make(chan struct{})
	release := make(chan struct{})
	var releaseOnce sync.Once
	unblock := func() { releaseOnce.Do(func() { close(release) }) }
	defer unblock()

	var blockOnce sync.Once
	r.port.OnWrite = func(pin int, level gpio.Level) {
		if pin == openPin && level == gpio.High {
			blockOnce.Do(func() {
				close(entered)
				<-release
			})
		}
	}

	cycled := make(chan struct{})
	go func() {
		r.coop.Cycle(context.Background())
		close(cycled)
	}()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle never started the door drive")
	}

	// Another device answers while the door is moving.
	powered := make(chan error, 1)
	go func() { powered <- r.coop.SetPower("light", true) }()
	select {
	case err := <-powered:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("light command waited on the door drive")
	}
	if r.port.Level(lightPin) != gpio.High {
		t.Error("light relay should be on during the door drive")
	}
	if got := device(t, r.coop.Status(), "door").Mode; got != "auto" {
		t.Errorf("door mode during drive: got %q, want auto", got)
	}

	// A door command waits for the drive in progress.
	moded := make(chan error, 1)
	go func() { moded <- r.coop.SetMode("door", "manual") }()
	select {
	case err := <-moded:
		t.Fatalf("door mode change did not wait for the drive (err=%v)", err)
	case <-time.After(50 * time.Millisecond):
	}

	unblock()
	select {
	case err := <-moded:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("door mode change never completed")
	}
	select {
	case <-cycled:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle never completed")
	}

	s := r.coop.Status()
	light := device(t, s, "light")
	if !light.On || light.State != "manual-on" {
		t.Errorf("light: got on=%v state=%q, want manual-on", light.On, light.State)
	}
	door := device(t, s, "door")
	if door.Mode != "manual" || door.Position != "open" {
		t.Errorf("door: got %q/%q, want manual/open", door.Mode, door.Position)
	}
	if r.port.Level(openPin) != gpio.Low {
		t.Error("open relay should be off after the drive")
	}
}

func TestShutdown(t *testing.T) {
	r := newRig(t, testConfig())
	r.coop.Cycle(context.Background())
	if r.port.Level(heaterPin) != gpio.High {
		t.Fatal("water heater should be on before shutdown")
	}

	if err := r.coop.Shutdown(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, pin := range []int{heaterPin, lightPin, openPin, closePin, redPin, greenPin, bluePin} {
		if r.port.Level(pin) != gpio.Low {
			t.Errorf("pin %d after shutdown: got %v, want LOW", pin, r.port.Level(pin))
		}
	}

	writes := len(r.port.Writes)
	r.coop.Cycle(context.Background())
	if len(r.port.Writes) != writes {
		t.Error("cycle after shutdown drove outputs")
	}
	if err := r.coop.Shutdown(); err != nil {
		t.Errorf("second shutdown: %v", err)
	}

	if err := r.coop.SetPower("light", true); !errors.Is(err, ErrClosed) {
		t.Errorf("SetPower after shutdown: got %v, want ErrClosed", err)
	}
	if err := r.coop.DoorAction("open"); !errors.Is(err, ErrClosed) {
		t.Errorf("DoorAction after shutdown: got %v, want ErrClosed", err)
	}
	if r.port.Level(lightPin) != gpio.Low {
		t.Error("light driven after shutdown")
	}
}

func TestShutdownReportsRelayFailure(t *testing.T) {
	r := newRig(t, testConfig())
	r.coop.Cycle(context.Background())
	r.port.WriteErrors[heaterPin] = errors.New("line released")

	if err := r.coop.Shutdown(); err == nil {
		t.Error("expected error from failed relay reset")
	}
	if r.port.Level(lightPin) != gpio.Low {
		t.Error("other relays should still be reset")
	}
}

func TestStatusBeforeFirstCycle(t *testing.T) {
	r := newRig(t, testConfig())
	s := r.coop.Status()
	if !s.UpdatedAt.IsZero() {
		t.Errorf("UpdatedAt: got %v, want zero", s.UpdatedAt)
	}
	if len(s.Devices) != 3 {
		t.Errorf("devices: got %d, want 3 (water heater, light, door)", len(s.Devices))
	}
	if s.Day != "invalid" {
		t.Errorf("Day: got %q, want invalid", s.Day)
	}
}
