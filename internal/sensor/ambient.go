package sensor

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nunofsantos/coop-controller/internal/notify"
)

// ClimateReader performs one combined temperature (Celsius) and relative
// humidity (percent) measurement. It may block for seconds.
type ClimateReader interface {
	ReadClimate() (tempC, humidity float64, err error)
}

// HumidityState is the band a humidity reading falls in.
type HumidityState string

const (
	HumidityOK      HumidityState = "ok"
	HumidityLow     HumidityState = "low"
	HumidityHigh    HumidityState = "high"
	HumidityInvalid HumidityState = "invalid"
)

var (
	kindHumidityLow = notify.Kind{
		Name:     "humidity_low",
		Severity: notify.Warn,
		Template: "%s - humidity %.1f%% is below %.1f%% minimum",
		Single:   true,
		Clears:   []string{"humidity_high"},
	}
	kindHumidityHigh = notify.Kind{
		Name:     "humidity_high",
		Severity: notify.Warn,
		Template: "%s - humidity %.1f%% is above %.1f%% maximum",
		Single:   true,
		Clears:   []string{"humidity_low"},
	}
	kindHumidityOK = notify.Kind{
		Name:      "humidity_ok",
		Severity:  notify.Info,
		Template:  "%s - humidity %.1f%% is back within range",
		AutoClear: true,
		Clears:    []string{"humidity_low", "humidity_high"},
	}
)

// AmbientConfig describes the coop air sensor.
type AmbientConfig struct {
	Temp        TempConfig
	HumidityMin float64
	HumidityMax float64
}

// AmbientSensor wraps one climate reading into a temperature band sensor
// and a humidity range check.
type AmbientSensor struct {
	cfg    AmbientConfig
	reader ClimateReader
	temp   *TempSensor
	notes  *notify.Registry
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	humi    float64
	humiAt  time.Time
	hasHumi bool
	state   HumidityState
}

// NewAmbientSensor creates the sensor. Temperature and humidity share notes.
func NewAmbientSensor(cfg AmbientConfig, reader ClimateReader, notes *notify.Registry, logger *zap.Logger, now func() time.Time) *AmbientSensor {
	if now == nil {
		now = time.Now
	}
	return &AmbientSensor{
		cfg:    cfg,
		reader: reader,
		temp:   NewTempSensor(cfg.Temp, nil, notes, logger, now),
		notes:  notes,
		logger: logger,
		now:    now,
	}
}

// Name returns the sensor label.
func (a *AmbientSensor) Name() string { return a.cfg.Temp.Name }

// Read performs a blocking climate measurement.
func (a *AmbientSensor) Read() error {
	c, h, err := a.reader.ReadClimate()
	if err != nil {
		return fmt.Errorf("%s: %w", a.cfg.Temp.Name, err)
	}
	a.temp.Record(a.cfg.Temp.Unit.FromCelsius(c))

	a.mu.Lock()
	a.humi = h
	a.humiAt = a.now()
	a.hasHumi = true
	a.mu.Unlock()
	return nil
}

// Check classifies both readings.
func (a *AmbientSensor) Check() (TempState, HumidityState) {
	return a.temp.Check(), a.checkHumidity()
}

// ReadAndCheck reads then checks. A read failure is logged, not returned.
func (a *AmbientSensor) ReadAndCheck() (TempState, HumidityState) {
	if err := a.Read(); err != nil && a.logger != nil {
		a.logger.Warn("ambient read failed", zap.String("sensor", a.cfg.Temp.Name), zap.Error(err))
	}
	return a.Check()
}

func (a *AmbientSensor) checkHumidity() HumidityState {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.hasHumi && a.now().Sub(a.humiAt) > a.cfg.Temp.Cache {
		a.hasHumi = false
	}

	st := HumidityInvalid
	switch {
	case !a.hasHumi:
	case a.humi < a.cfg.HumidityMin:
		st = HumidityLow
	case a.humi > a.cfg.HumidityMax:
		st = HumidityHigh
	default:
		st = HumidityOK
	}

	prev := a.state
	a.state = st
	if st == prev {
		return st
	}

	name := a.cfg.Temp.Name
	switch st {
	case HumidityLow:
		a.notes.Raise(kindHumidityLow, name, a.humi, a.cfg.HumidityMin)
	case HumidityHigh:
		a.notes.Raise(kindHumidityHigh, name, a.humi, a.cfg.HumidityMax)
	case HumidityOK:
		if prev == HumidityLow || prev == HumidityHigh {
			a.notes.Raise(kindHumidityOK, name, a.humi)
		}
	case HumidityInvalid:
		// the temperature sensor already reports the missing reading
		a.notes.Clear(kindHumidityOK.Clears...)
	}
	return st
}

// TempSensor exposes the temperature half.
func (a *AmbientSensor) TempSensor() *TempSensor { return a.temp }

// Humidity returns the latest usable humidity reading.
func (a *AmbientSensor) Humidity() (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.hasHumi || a.state == HumidityInvalid || a.state == "" {
		return 0, false
	}
	return a.humi, true
}

// HumidityState returns the humidity band from the last Check.
func (a *AmbientSensor) HumidityState() HumidityState {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == "" {
		return HumidityInvalid
	}
	return a.state
}
