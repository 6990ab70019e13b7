// Package coop wires the sensors, actuators and status indicator of one coop
// and runs the control cycle over them.
package coop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nunofsantos/coop-controller/internal/actuator"
	"github.com/nunofsantos/coop-controller/internal/config"
	"github.com/nunofsantos/coop-controller/internal/envlog"
	"github.com/nunofsantos/coop-controller/internal/gpio"
	"github.com/nunofsantos/coop-controller/internal/led"
	"github.com/nunofsantos/coop-controller/internal/notify"
	"github.com/nunofsantos/coop-controller/internal/relay"
	"github.com/nunofsantos/coop-controller/internal/sensor"
	"github.com/nunofsantos/coop-controller/internal/status"
)

// Deps are the hardware and service boundaries the controller runs on.
type Deps struct {
	Port      gpio.Port
	Twilight  sensor.TwilightSource
	Climate   sensor.ClimateReader // required when ambient is enabled
	WaterTemp sensor.TempReader
	Recorder  *envlog.Recorder // optional
	Deliverer notify.Deliverer // optional
	Logger    *zap.Logger
	Now       func() time.Time
}

// Coop owns every sensor, actuator, relay and the indicator of one site.
type Coop struct {
	cfg      *config.Config
	hub      *notify.Hub
	recorder *envlog.Recorder
	logger   *zap.Logger
	now      func() time.Time
	unit     sensor.Unit

	sun        *sensor.SunSensor
	ambient    *sensor.AmbientSensor
	waterTemp  *sensor.TempSensor
	waterLevel *sensor.WaterLevelSensor

	sunNotes        *notify.Registry
	ambientNotes    *notify.Registry
	waterTempNotes  *notify.Registry
	waterLevelNotes *notify.Registry

	waterHeater *actuator.Controller
	heater      *actuator.Controller
	fan         *actuator.Controller
	light       *actuator.Controller
	door        *actuator.Door

	// controllers in cycle order.
	controllers []*actuator.Controller

	indicator *led.RGB
	indMu     sync.Mutex // orders indicator writes against Shutdown

	mu     sync.Mutex // serializes Cycle and Shutdown
	closed atomic.Bool

	lastMu    sync.RWMutex
	lastCycle time.Time
}

// New builds the controller from cfg. Only hardware setup failures are
// returned; everything later is turned into state and notifications.
func New(cfg *config.Config, deps Deps) (*Coop, error) {
	if deps.Port == nil {
		return nil, errors.New("coop: gpio port is required")
	}
	if deps.Twilight == nil {
		return nil, errors.New("coop: twilight source is required")
	}
	if cfg.Ambient.Enabled && deps.Climate == nil {
		return nil, errors.New("coop: ambient sensor enabled without a climate reader")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	deliver := deps.Deliverer
	if deliver == nil {
		deliver = notify.DelivererFunc(func(notify.Notification) {})
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("coop: %w", err)
	}

	c := &Coop{
		cfg:      cfg,
		hub:      notify.NewHub(deliver, now),
		recorder: deps.Recorder,
		logger:   logger,
		now:      now,
		unit:     sensor.Unit(cfg.Main.Units),
	}
	port := deps.Port
	activeLow := cfg.Main.RelayActiveLow

	// Sensors.
	c.sunNotes = c.hub.Registry("sunrise-sunset")
	c.sun = sensor.NewSunSensor(sensor.SunConfig{
		Name:         "sunrise/sunset",
		Latitude:     cfg.Site.Latitude,
		Longitude:    cfg.Site.Longitude,
		ExtraSunrise: cfg.Door.ExtraSunrise,
		ExtraSunset:  cfg.Door.ExtraSunset,
		Retry:        cfg.Notify.SunRetry,
		Location:     loc,
	}, deps.Twilight, c.sunNotes, logger.Named("sun"), now)

	if cfg.Ambient.Enabled {
		c.ambientNotes = c.hub.Registry("ambient")
		c.ambient = sensor.NewAmbientSensor(sensor.AmbientConfig{
			Temp: sensor.TempConfig{
				Name:       "coop temperature",
				Thresholds: thresholds(cfg.Ambient.Temp),
				Unit:       c.unit,
				Cache:      cfg.Ambient.Cache,
				Severities: sensor.DefaultTempSeverities(),
			},
			HumidityMin: cfg.Ambient.Humidity.Min,
			HumidityMax: cfg.Ambient.Humidity.Max,
		}, deps.Climate, c.ambientNotes, logger.Named("ambient"), now)
	}

	c.waterTempNotes = c.hub.Registry("water-temperature")
	c.waterTemp = sensor.NewTempSensor(sensor.TempConfig{
		Name:       "water temperature",
		Thresholds: thresholds(cfg.Water.Temp),
		Unit:       c.unit,
		Cache:      cfg.Water.Cache,
		Severities: sensor.WaterTempSeverities(),
	}, deps.WaterTemp, c.waterTempNotes, logger.Named("water-temp"), now)

	c.waterLevelNotes = c.hub.Registry("water-level")
	half, err := sensor.NewSwitchSensor(sensor.SwitchConfig{
		Name: "water half float",
		Pin:  cfg.Water.LevelHalfPin,
	}, port, c.waterLevelNotes, logger)
	if err != nil {
		return nil, err
	}
	empty, err := sensor.NewSwitchSensor(sensor.SwitchConfig{
		Name: "water empty float",
		Pin:  cfg.Water.LevelEmptyPin,
	}, port, c.waterLevelNotes, logger)
	if err != nil {
		return nil, err
	}
	c.waterLevel = sensor.NewWaterLevelSensor("water level", half, empty, c.waterLevelNotes)

	// Actuators.
	rly := func(name string, pin int) (*relay.Relay, error) {
		return relay.New(name, port, pin, activeLow)
	}

	heaterRelay, err := rly("water heater", cfg.Water.HeaterPin)
	if err != nil {
		return nil, err
	}
	c.waterHeater = actuator.NewWaterHeater(heaterRelay, rangeOf(cfg.Water.HeaterRange), cfg.Water.Manual,
		c.hub.Registry("water-heater"), logger.Named("water-heater"))
	c.controllers = append(c.controllers, c.waterHeater)

	if cfg.Heater.Enabled {
		r, err := rly("heater", cfg.Heater.Pin)
		if err != nil {
			return nil, err
		}
		c.heater = actuator.NewHeater(r, rangeOf(cfg.Heater.Range), cfg.Heater.Manual,
			c.hub.Registry("heater"), logger.Named("heater"))
		c.controllers = append(c.controllers, c.heater)
	}
	if cfg.Fan.Enabled {
		r, err := rly("fan", cfg.Fan.Pin)
		if err != nil {
			return nil, err
		}
		c.fan = actuator.NewFan(r, rangeOf(cfg.Fan.Range), cfg.Fan.Manual,
			c.hub.Registry("fan"), logger.Named("fan"))
		c.controllers = append(c.controllers, c.fan)
	}

	lightRelay, err := rly("light", cfg.Light.Pin)
	if err != nil {
		return nil, err
	}
	c.light = actuator.NewLight(lightRelay, cfg.Light.OnAtDay, cfg.Light.Manual,
		c.hub.Registry("light"), logger.Named("light"))
	c.controllers = append(c.controllers, c.light)

	doorNotes := c.hub.Registry("door")
	sw := func(name string, pin int) (*sensor.SwitchSensor, error) {
		return sensor.NewSwitchSensor(sensor.SwitchConfig{
			Name:           name,
			Pin:            pin,
			NormallyClosed: cfg.Door.NormallyClosed,
			Timeout:        cfg.Door.SensorTimeout,
			Debounce:       cfg.Door.Debounce,
		}, port, doorNotes, logger)
	}
	top, err := sw("door top switch", cfg.Door.TopSensorPin)
	if err != nil {
		return nil, err
	}
	bottom, err := sw("door bottom switch", cfg.Door.BottomSensorPin)
	if err != nil {
		return nil, err
	}
	openRelay, err := rly("door open", cfg.Door.OpenPin)
	if err != nil {
		return nil, err
	}
	closeRelay, err := rly("door close", cfg.Door.ClosePin)
	if err != nil {
		return nil, err
	}
	c.door = actuator.NewDoor(openRelay, closeRelay, sensor.NewDoorSensor(top, bottom), cfg.Door.Manual,
		doorNotes, logger.Named("door"))

	if cfg.Indicator.Enabled {
		c.indicator, err = led.New(port, led.Pins{
			Red:   cfg.Indicator.RedPin,
			Green: cfg.Indicator.GreenPin,
			Blue:  cfg.Indicator.BluePin,
		}, cfg.Indicator.ActiveLow)
		if err != nil {
			return nil, err
		}
	}

	return c, nil
}

func thresholds(b config.Bands) sensor.Thresholds {
	return sensor.Thresholds{ErrorLow: b.ErrorLow, Low: b.Low, High: b.High, ErrorHigh: b.ErrorHigh}
}

func rangeOf(r config.Range) actuator.Range {
	return actuator.Range{Min: r.Min, Max: r.Max}
}

// Cycle runs one control pass: sensors first, then every actuator, then the
// indicator and the environmental log.
func (c *Coop) Cycle(ctx context.Context) status.Coop {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return c.Status()
	}

	day := c.sun.ReadAndCheck(ctx)

	in := actuator.Inputs{Day: day}
	if c.ambient != nil {
		c.ambient.ReadAndCheck()
		in.AmbientTemp = c.ambient.TempSensor().TempPtr()
	}
	c.waterTemp.ReadAndCheck()
	in.WaterTemp = c.waterTemp.TempPtr()
	in.WaterLevel = c.waterLevel.ReadAndCheck()

	for _, ctl := range c.controllers {
		ctl.Check(in)
	}
	c.door.Check(day)

	c.lastMu.Lock()
	c.lastCycle = c.now()
	c.lastMu.Unlock()
	c.showIndicator()
	c.record(ctx, in)

	return c.Status()
}

func (c *Coop) showIndicator() {
	if c.indicator == nil {
		return
	}
	c.indMu.Lock()
	defer c.indMu.Unlock()
	if c.closed.Load() {
		return
	}
	if err := c.indicator.Show(c.hub.Aggregate()); err != nil {
		c.logger.Warn("status indicator write failed", zap.Error(err))
	}
}

func (c *Coop) record(ctx context.Context, in actuator.Inputs) {
	if c.recorder == nil {
		return
	}
	if in.AmbientTemp != nil {
		c.recorder.Record(ctx, envlog.AmbientTemp, *in.AmbientTemp)
	}
	if c.ambient != nil {
		if h, ok := c.ambient.Humidity(); ok {
			c.recorder.Record(ctx, envlog.AmbientHumidity, h)
		}
	}
	if in.WaterTemp != nil {
		c.recorder.Record(ctx, envlog.WaterTemp, *in.WaterTemp)
	}
}

// Severity returns the worst active severity across the coop.
func (c *Coop) Severity() notify.Severity {
	return c.hub.Aggregate()
}

// Status returns the current view of every device and sensor. It never
// waits on a door drive.
func (c *Coop) Status() status.Coop {
	c.lastMu.RLock()
	last := c.lastCycle
	c.lastMu.RUnlock()

	sev := c.hub.Aggregate()
	out := status.Coop{
		Severity:      sev,
		Indicator:     led.ColorFor(sev).Name,
		Day:           string(c.sun.State()),
		Notifications: c.hub.Active(),
		UpdatedAt:     last,
	}
	if c.indicator != nil {
		out.Indicator = c.indicator.Color().Name
	}
	out.Sunrise, out.Sunset = c.sun.Describe()

	for _, ctl := range c.controllers {
		out.Devices = append(out.Devices, deviceStatus(ctl.Snapshot()))
	}
	out.Devices = append(out.Devices, deviceStatus(c.door.Snapshot()))

	unit := string(c.unit)
	if c.ambient != nil {
		ts := c.ambient.TempSensor()
		out.Sensors = append(out.Sensors,
			status.Sensor{Name: ts.Name(), State: string(ts.State()), Value: ts.TempPtr(), Unit: unit, Severity: c.ambientNotes.Status()},
			status.Sensor{Name: "coop humidity", State: string(c.ambient.HumidityState()), Value: humidityPtr(c.ambient), Unit: "%", Severity: c.ambientNotes.Status()},
		)
	}
	out.Sensors = append(out.Sensors,
		status.Sensor{Name: c.waterTemp.Name(), State: string(c.waterTemp.State()), Value: c.waterTemp.TempPtr(), Unit: unit, Severity: c.waterTempNotes.Status()},
		status.Sensor{Name: c.waterLevel.Name(), State: string(c.waterLevel.Level()), Severity: c.waterLevelNotes.Status()},
		status.Sensor{Name: c.sun.Name(), State: string(c.sun.State()), Severity: c.sunNotes.Status()},
	)
	return out
}

func humidityPtr(a *sensor.AmbientSensor) *float64 {
	h, ok := a.Humidity()
	if !ok {
		return nil
	}
	return &h
}

func deviceStatus(s actuator.Snapshot) status.Device {
	return status.Device{
		ID:       s.ID,
		Name:     s.Name,
		Mode:     string(s.Mode),
		State:    s.State,
		On:       s.On,
		Position: string(s.Position),
		Severity: s.Status,
	}
}

// controller looks up a single-relay device by id.
func (c *Coop) controller(id string) (*actuator.Controller, bool) {
	for _, ctl := range c.controllers {
		if ctl.ID() == id {
			return ctl, true
		}
	}
	return nil, false
}

// SetMode switches a device between auto and manual.
func (c *Coop) SetMode(id, mode string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	id = strings.ToLower(id)
	ctl, ok := c.controller(id)
	if !ok && id != c.door.ID() {
		return fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}
	m, err := actuator.ParseMode(mode)
	if err != nil {
		return err
	}
	if ok {
		err = ctl.SetMode(m)
	} else {
		err = c.door.SetMode(m)
	}
	if err != nil {
		return err
	}
	c.logger.Info("operator set mode", zap.String("device", id), zap.String("mode", mode))
	c.showIndicator()
	return nil
}

// SetPower turns a single-relay device on or off. The device is switched
// to manual first. A call racing Shutdown is refused by the device itself
// once its relay has been reset.
func (c *Coop) SetPower(id string, on bool) error {
	if c.closed.Load() {
		return ErrClosed
	}
	id = strings.ToLower(id)
	ctl, ok := c.controller(id)
	if !ok {
		if id == c.door.ID() {
			return fmt.Errorf("set power of %s: %w", id, ErrUnsupported)
		}
		return fmt.Errorf("%w: %q", ErrUnknownDevice, id)
	}
	if err := ctl.SetPower(on); err != nil {
		if errors.Is(err, actuator.ErrClosed) {
			return ErrClosed
		}
		c.showIndicator()
		return err
	}
	c.logger.Info("operator set power", zap.String("device", id), zap.Bool("on", on))
	c.showIndicator()
	return nil
}

// DoorAction opens or closes the door. It blocks for the drive sequence.
func (c *Coop) DoorAction(action string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	a, ok := actuator.ParseDoorAction(action)
	if !ok {
		return fmt.Errorf("door action %q: %w", action, actuator.ErrInvalidAction)
	}
	err := c.door.Do(a)
	if errors.Is(err, actuator.ErrClosed) {
		return ErrClosed
	}
	c.showIndicator()
	if err != nil {
		return err
	}
	c.logger.Info("operator door action", zap.String("action", string(a)))
	return nil
}

// Shutdown drives every relay to its safe level and darkens the indicator.
// It waits for a cycle or door drive in progress. Later cycles are no-ops
// and later control calls fail with ErrClosed.
func (c *Coop) Shutdown() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, ctl := range c.controllers {
		if err := ctl.Reset(); err != nil {
			errs = append(errs, fmt.Errorf("reset %s: %w", ctl.ID(), err))
		}
	}
	if err := c.door.Reset(); err != nil {
		errs = append(errs, fmt.Errorf("reset door: %w", err))
	}
	if c.indicator != nil {
		c.indMu.Lock()
		if err := c.indicator.Off(); err != nil {
			errs = append(errs, fmt.Errorf("indicator off: %w", err))
		}
		c.indMu.Unlock()
	}
	c.logger.Info("relays reset to safe levels")
	return errors.Join(errs...)
}
