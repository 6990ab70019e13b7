package sensor

import (
	"sync"

	"github.com/nunofsantos/coop-controller/internal/notify"
)

// WaterLevel is the tank level derived from the half and empty floats.
type WaterLevel string

const (
	LevelFull    WaterLevel = "full"
	LevelHalf    WaterLevel = "half"
	LevelEmpty   WaterLevel = "empty"
	LevelInvalid WaterLevel = "invalid"
)

// LevelOf combines the float contacts. A float switch closes while
// submerged, so the half float open with the empty float still closed is
// the normal draining order; the reverse cannot happen physically.
func LevelOf(half, empty Contact) WaterLevel {
	switch {
	case half == ContactClosed && empty == ContactClosed:
		return LevelFull
	case half == ContactOpen && empty == ContactClosed:
		return LevelHalf
	case half == ContactOpen && empty == ContactOpen:
		return LevelEmpty
	}
	return LevelInvalid
}

var (
	kindWaterFull = notify.Kind{
		Name:      "water_full",
		Severity:  notify.Info,
		Template:  "%s - water tank is full",
		AutoClear: true,
		Clears:    []string{"water_half", "water_empty", "water_invalid"},
	}
	kindWaterHalf = notify.Kind{
		Name:     "water_half",
		Severity: notify.Warn,
		Template: "%s - water tank is low",
		Single:   true,
		Clears:   []string{"water_empty", "water_invalid"},
	}
	kindWaterEmpty = notify.Kind{
		Name:     "water_empty",
		Severity: notify.Error,
		Template: "%s - water tank is empty",
		Single:   true,
		Clears:   []string{"water_half", "water_invalid"},
	}
	kindWaterInvalid = notify.Kind{
		Name:     "water_invalid",
		Severity: notify.Error,
		Template: "%s - water tank sensors are in invalid state",
		Single:   true,
		Clears:   []string{"water_half", "water_empty"},
	}
)

var waterKinds = map[WaterLevel]notify.Kind{
	LevelFull:    kindWaterFull,
	LevelHalf:    kindWaterHalf,
	LevelEmpty:   kindWaterEmpty,
	LevelInvalid: kindWaterInvalid,
}

// WaterLevelSensor is the composite of the half and empty float switches.
type WaterLevelSensor struct {
	name  string
	half  *SwitchSensor
	empty *SwitchSensor
	notes *notify.Registry

	mu    sync.Mutex
	level WaterLevel
}

// NewWaterLevelSensor creates the composite.
func NewWaterLevelSensor(name string, half, empty *SwitchSensor, notes *notify.Registry) *WaterLevelSensor {
	return &WaterLevelSensor{name: name, half: half, empty: empty, notes: notes}
}

// Name returns the sensor label.
func (w *WaterLevelSensor) Name() string { return w.name }

// Read samples both floats.
func (w *WaterLevelSensor) Read() {
	w.half.ReadAndCheck()
	w.empty.ReadAndCheck()
}

// Check derives the level from the last float reads and raises on change.
func (w *WaterLevelSensor) Check() WaterLevel {
	lvl := LevelOf(w.half.Check(), w.empty.Check())

	w.mu.Lock()
	defer w.mu.Unlock()
	if lvl == w.level {
		return lvl
	}
	w.level = lvl
	w.notes.Raise(waterKinds[lvl], w.name)
	return lvl
}

// ReadAndCheck reads both floats then checks.
func (w *WaterLevelSensor) ReadAndCheck() WaterLevel {
	w.Read()
	return w.Check()
}

// Level returns the level from the last Check.
func (w *WaterLevelSensor) Level() WaterLevel {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.level == "" {
		return LevelInvalid
	}
	return w.level
}

// Status returns the worst active severity of the composite.
func (w *WaterLevelSensor) Status() notify.Severity {
	return w.notes.Status()
}
