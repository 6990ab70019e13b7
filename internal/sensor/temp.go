// Package sensor implements the sensor state machines: temperature bands,
// humidity, contact switches, the water-level and door-position composites,
// and day/night.
package sensor

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nunofsantos/coop-controller/internal/notify"
)

// Unit is the temperature scale readings and thresholds are expressed in.
type Unit string

const (
	Fahrenheit Unit = "F"
	Celsius    Unit = "C"
)

// FromCelsius converts a Celsius reading to u.
func (u Unit) FromCelsius(c float64) float64 {
	if u == Fahrenheit {
		return c*1.8 + 32
	}
	return c
}

// TempState is the band a temperature reading falls in.
type TempState string

const (
	TempOK        TempState = "ok"
	TempLow       TempState = "low"
	TempHigh      TempState = "high"
	TempErrorLow  TempState = "error_low"
	TempErrorHigh TempState = "error_high"
	TempInvalid   TempState = "invalid"
)

// Thresholds are ordered ErrorLow < Low < High < ErrorHigh.
type Thresholds struct {
	ErrorLow  float64
	Low       float64
	High      float64
	ErrorHigh float64
}

func isErrorHigh(th Thresholds, t *float64) bool { return t != nil && *t > th.ErrorHigh }
func isErrorLow(th Thresholds, t *float64) bool  { return t != nil && *t < th.ErrorLow }
func isHigh(th Thresholds, t *float64) bool      { return t != nil && *t > th.High && *t <= th.ErrorHigh }
func isLow(th Thresholds, t *float64) bool       { return t != nil && *t >= th.ErrorLow && *t < th.Low }
func isOK(th Thresholds, t *float64) bool        { return t != nil && *t >= th.Low && *t <= th.High }
func isInvalid(_ Thresholds, t *float64) bool    { return t == nil }

var tempGuards = []struct {
	state TempState
	match func(Thresholds, *float64) bool
}{
	{TempErrorHigh, isErrorHigh},
	{TempErrorLow, isErrorLow},
	{TempHigh, isHigh},
	{TempLow, isLow},
	{TempOK, isOK},
	{TempInvalid, isInvalid},
}

// Classify returns the band of t, or TempInvalid when there is no reading.
func (th Thresholds) Classify(t *float64) TempState {
	for _, g := range tempGuards {
		if g.match(th, t) {
			return g.state
		}
	}
	// NaN matches no band.
	return TempInvalid
}

// TempSeverities maps each non-ok band to the severity it raises.
type TempSeverities map[TempState]notify.Severity

// DefaultTempSeverities suits ambient air: both warning bands WARN, both
// error bands ERROR.
func DefaultTempSeverities() TempSeverities {
	return TempSeverities{
		TempLow:       notify.Warn,
		TempHigh:      notify.Warn,
		TempErrorLow:  notify.Error,
		TempErrorHigh: notify.Error,
		TempInvalid:   notify.Warn,
	}
}

// WaterTempSeverities suits heated drinking water: warm water is expected,
// freezing water is an emergency.
func WaterTempSeverities() TempSeverities {
	return TempSeverities{
		TempLow:       notify.Warn,
		TempHigh:      notify.Info,
		TempErrorLow:  notify.Error,
		TempErrorHigh: notify.Warn,
		TempInvalid:   notify.Warn,
	}
}

var tempTemplates = map[TempState]string{
	TempLow:       "%s - temperature %.1f is below %.1f minimum",
	TempHigh:      "%s - temperature %.1f is above %.1f maximum",
	TempErrorLow:  "%s - temperature %.1f is below %.1f, critically low",
	TempErrorHigh: "%s - temperature %.1f is above %.1f, critically high",
	TempInvalid:   "%s - temperature reading is unavailable",
}

var tempBands = []TempState{TempLow, TempHigh, TempErrorLow, TempErrorHigh, TempInvalid}

func tempKinds(sev TempSeverities) (map[TempState]notify.Kind, notify.Kind) {
	kinds := make(map[TempState]notify.Kind, len(tempBands))
	for _, st := range tempBands {
		var clears []string
		for _, other := range tempBands {
			if other != st {
				clears = append(clears, "temp_"+string(other))
			}
		}
		s, ok := sev[st]
		if !ok {
			s = DefaultTempSeverities()[st]
		}
		kinds[st] = notify.Kind{
			Name:     "temp_" + string(st),
			Severity: s,
			Template: tempTemplates[st],
			Single:   true,
			Clears:   clears,
		}
	}
	var all []string
	for _, st := range tempBands {
		all = append(all, "temp_"+string(st))
	}
	ok := notify.Kind{
		Name:      "temp_ok",
		Severity:  notify.Info,
		Template:  "%s - temperature %.1f is back within range",
		AutoClear: true,
		Clears:    all,
	}
	return kinds, ok
}

// TempReader reads a temperature in Celsius.
type TempReader interface {
	ReadTemp() (float64, error)
}

// TempConfig describes a temperature sensor.
type TempConfig struct {
	Name       string
	Thresholds Thresholds
	Unit       Unit
	// Cache is how long a reading stays usable after it was taken.
	Cache      time.Duration
	Severities TempSeverities
}

// TempSensor classifies the latest reading into a band and raises a
// notification whenever the band changes.
type TempSensor struct {
	cfg    TempConfig
	reader TempReader
	notes  *notify.Registry
	logger *zap.Logger
	now    func() time.Time
	kinds  map[TempState]notify.Kind
	okKind notify.Kind

	mu      sync.Mutex
	temp    float64
	readAt  time.Time
	hasTemp bool
	state   TempState
}

// NewTempSensor creates a sensor. reader may be nil when readings are fed
// with Record by a composite sensor.
func NewTempSensor(cfg TempConfig, reader TempReader, notes *notify.Registry, logger *zap.Logger, now func() time.Time) *TempSensor {
	if now == nil {
		now = time.Now
	}
	kinds, okKind := tempKinds(cfg.Severities)
	return &TempSensor{
		cfg:    cfg,
		reader: reader,
		notes:  notes,
		logger: logger,
		now:    now,
		kinds:  kinds,
		okKind: okKind,
	}
}

// Name returns the sensor label.
func (s *TempSensor) Name() string { return s.cfg.Name }

// Read takes a fresh reading. On failure the previous reading is kept until
// it ages out of the cache window.
func (s *TempSensor) Read() error {
	if s.reader == nil {
		return nil
	}
	c, err := s.reader.ReadTemp()
	if err != nil {
		return fmt.Errorf("%s: %w", s.cfg.Name, err)
	}
	s.Record(s.cfg.Unit.FromCelsius(c))
	return nil
}

// Record stores a reading already converted to the sensor's unit.
func (s *TempSensor) Record(t float64) {
	s.mu.Lock()
	s.temp = t
	s.readAt = s.now()
	s.hasTemp = true
	s.mu.Unlock()
}

// Check classifies the cached reading and raises on band change.
func (s *TempSensor) Check() TempState {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t *float64
	if s.hasTemp && s.now().Sub(s.readAt) <= s.cfg.Cache {
		v := s.temp
		t = &v
	} else {
		s.hasTemp = false
	}

	st := s.cfg.Thresholds.Classify(t)
	prev := s.state
	s.state = st
	if st == prev {
		return st
	}

	th := s.cfg.Thresholds
	switch st {
	case TempOK:
		if prev == "" {
			s.notes.Clear(s.okKind.Clears...)
		} else {
			s.notes.Raise(s.okKind, s.cfg.Name, *t)
		}
	case TempLow:
		s.notes.Raise(s.kinds[st], s.cfg.Name, *t, th.Low)
	case TempHigh:
		s.notes.Raise(s.kinds[st], s.cfg.Name, *t, th.High)
	case TempErrorLow:
		s.notes.Raise(s.kinds[st], s.cfg.Name, *t, th.ErrorLow)
	case TempErrorHigh:
		s.notes.Raise(s.kinds[st], s.cfg.Name, *t, th.ErrorHigh)
	case TempInvalid:
		s.notes.Raise(s.kinds[st], s.cfg.Name)
	}
	return st
}

// ReadAndCheck reads then checks. A read failure is logged, not returned.
func (s *TempSensor) ReadAndCheck() TempState {
	if err := s.Read(); err != nil && s.logger != nil {
		s.logger.Warn("temperature read failed", zap.String("sensor", s.cfg.Name), zap.Error(err))
	}
	return s.Check()
}

// State returns the band from the last Check.
func (s *TempSensor) State() TempState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == "" {
		return TempInvalid
	}
	return s.state
}

// Temp returns the reading used by the last Check, if it was valid.
func (s *TempSensor) Temp() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasTemp || s.state == TempInvalid || s.state == "" {
		return 0, false
	}
	return s.temp, true
}

// TempPtr is Temp as a nil-able value, the shape actuator guards consume.
func (s *TempSensor) TempPtr() *float64 {
	if t, ok := s.Temp(); ok {
		return &t
	}
	return nil
}

// Status returns the worst active severity of the sensor's registry.
func (s *TempSensor) Status() notify.Severity {
	return s.notes.Status()
}
