// Package actuator implements the relay-driven devices: a generic
// auto/manual controller for single-relay devices and the two-relay door.
package actuator

import (
	"fmt"
	"strings"

	"github.com/nunofsantos/coop-controller/internal/notify"
	"github.com/nunofsantos/coop-controller/internal/sensor"
)

// Mode is who decides the device's power: the guards or the operator.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// ParseMode accepts "auto" or "manual" in any case.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case ModeAuto:
		return ModeAuto, nil
	case ModeManual:
		return ModeManual, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Inputs is the sensor snapshot a cycle feeds to every actuator.
type Inputs struct {
	WaterTemp   *float64
	AmbientTemp *float64
	Day         sensor.DayState
	WaterLevel  sensor.WaterLevel
}

// Snapshot is a device's state for the status surface.
type Snapshot struct {
	ID       string
	Name     string
	Mode     Mode
	State    string
	On       bool
	Position sensor.Position
	Status   notify.Severity
}

func modeKinds(name string) (manual, auto notify.Kind) {
	manual = notify.Kind{
		Name:     "mode_manual",
		Severity: notify.Manual,
		Template: name + " is in MANUAL mode",
		Single:   true,
	}
	auto = notify.Kind{
		Name:      "mode_auto",
		Severity:  notify.Info,
		Template:  name + " is in AUTO mode",
		AutoClear: true,
		Clears:    []string{"mode_manual"},
	}
	return manual, auto
}

var kindRelayFailed = notify.Kind{
	Name:     "relay_failed",
	Severity: notify.Error,
	Template: "%s - relay failure: %v",
	Single:   true,
}
