package actuator

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/nunofsantos/coop-controller/internal/notify"
	"github.com/nunofsantos/coop-controller/internal/relay"
	"github.com/nunofsantos/coop-controller/internal/sensor"
)

// State is the controller state. Bare auto and manual are transient entry
// states resolved to a power state by the next Check.
type State string

const (
	StateAuto      State = "auto"
	StateAutoOn    State = "auto-on"
	StateAutoOff   State = "auto-off"
	StateManual    State = "manual"
	StateManualOn  State = "manual-on"
	StateManualOff State = "manual-off"
)

// Mode returns the mode half of the state.
func (s State) Mode() Mode {
	if strings.HasPrefix(string(s), string(ModeManual)) {
		return ModeManual
	}
	return ModeAuto
}

type event int

const (
	evSetAuto event = iota
	evSetManual
	evOn
	evOff
)

func powerEvent(on bool) event {
	if on {
		return evOn
	}
	return evOff
}

// next is the controller transition function. Power events keep the mode;
// mode events enter the transient state of the new mode.
func next(s State, e event) State {
	switch e {
	case evSetAuto:
		return StateAuto
	case evSetManual:
		return StateManual
	case evOn:
		if s.Mode() == ModeManual {
			return StateManualOn
		}
		return StateAutoOn
	case evOff:
		if s.Mode() == ModeManual {
			return StateManualOff
		}
		return StateAutoOff
	}
	return s
}

// Guards are the device-specific predicates a Controller evaluates in auto
// mode. Inhibit, if set, is evaluated in both modes and holds the relay off
// while it reports true.
type Guards struct {
	TurnOn  func(Inputs) bool
	TurnOff func(Inputs) bool
	Inhibit func(Inputs) (bool, string)
}

// Range is a min/max pair in the unit of the guarded reading.
type Range struct {
	Min float64
	Max float64
}

// ControllerConfig names a controller and sets its starting mode.
type ControllerConfig struct {
	ID     string
	Name   string
	Manual bool
}

// Controller is a single-relay device under auto/manual arbitration. All
// mutating methods serialize on the controller's own lock. After Reset the
// relay stays at its safe level: Check does nothing and SetPower fails.
type Controller struct {
	id     string
	name   string
	relay  *relay.Relay
	guards Guards
	notes  *notify.Registry
	logger *zap.Logger

	kindManual    notify.Kind
	kindAuto      notify.Kind
	kindOn        notify.Kind
	kindOff       notify.Kind
	kindInhibited notify.Kind

	mu        sync.Mutex
	state     State
	inhibited bool
	closed    bool
}

// NewController creates a controller over rly.
func NewController(cfg ControllerConfig, rly *relay.Relay, guards Guards, notes *notify.Registry, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	manual, auto := modeKinds(cfg.Name)
	c := &Controller{
		id:         cfg.ID,
		name:       cfg.Name,
		relay:      rly,
		guards:     guards,
		notes:      notes,
		logger:     logger,
		kindManual: manual,
		kindAuto:   auto,
		kindOn: notify.Kind{
			Name:      "turned_on",
			Severity:  notify.Info,
			Template:  cfg.Name + " turned on (%s)",
			AutoClear: true,
		},
		kindOff: notify.Kind{
			Name:      "turned_off",
			Severity:  notify.Info,
			Template:  cfg.Name + " turned off (%s)",
			AutoClear: true,
		},
		kindInhibited: notify.Kind{
			Name:     "inhibited",
			Severity: notify.Error,
			Template: cfg.Name + " is disabled: %s",
			Single:   true,
		},
		state: StateAuto,
	}
	if cfg.Manual {
		c.state = next(next(StateAuto, evSetManual), powerEvent(rly.IsOn()))
		notes.Raise(c.kindManual)
	}
	return c
}

// NewWaterHeater heats the drinking water between rng.Min and rng.Max and
// is held off while the tank is not at least half full. A lost temperature
// reading turns it off.
func NewWaterHeater(rly *relay.Relay, rng Range, manual bool, notes *notify.Registry, logger *zap.Logger) *Controller {
	return NewController(ControllerConfig{ID: "water-heater", Name: "water heater", Manual: manual}, rly, Guards{
		TurnOn:  func(in Inputs) bool { return in.WaterTemp != nil && *in.WaterTemp < rng.Min },
		TurnOff: func(in Inputs) bool { return in.WaterTemp == nil || *in.WaterTemp > rng.Max },
		Inhibit: waterLevelInhibit,
	}, notes, logger)
}

func waterLevelInhibit(in Inputs) (bool, string) {
	switch in.WaterLevel {
	case sensor.LevelFull, sensor.LevelHalf:
		return false, ""
	case sensor.LevelEmpty:
		return true, "water tank is empty"
	}
	return true, "water level is unknown"
}

// NewHeater heats the coop air between rng.Min and rng.Max. Like the water
// heater it turns off without a reading.
func NewHeater(rly *relay.Relay, rng Range, manual bool, notes *notify.Registry, logger *zap.Logger) *Controller {
	return NewController(ControllerConfig{ID: "heater", Name: "heater", Manual: manual}, rly, Guards{
		TurnOn:  func(in Inputs) bool { return in.AmbientTemp != nil && *in.AmbientTemp < rng.Min },
		TurnOff: func(in Inputs) bool { return in.AmbientTemp == nil || *in.AmbientTemp > rng.Max },
	}, notes, logger)
}

// NewFan ventilates above rng.Max until the air is back below rng.Min.
func NewFan(rly *relay.Relay, rng Range, manual bool, notes *notify.Registry, logger *zap.Logger) *Controller {
	return NewController(ControllerConfig{ID: "fan", Name: "fan", Manual: manual}, rly, Guards{
		TurnOn:  func(in Inputs) bool { return in.AmbientTemp != nil && *in.AmbientTemp > rng.Max },
		TurnOff: func(in Inputs) bool { return in.AmbientTemp != nil && *in.AmbientTemp < rng.Min },
	}, notes, logger)
}

// NewLight lights the coop at night, or by day when onAtDay is set. An
// unknown day state changes nothing.
func NewLight(rly *relay.Relay, onAtDay bool, manual bool, notes *notify.Registry, logger *zap.Logger) *Controller {
	lit, dark := sensor.Night, sensor.Day
	if onAtDay {
		lit, dark = sensor.Day, sensor.Night
	}
	return NewController(ControllerConfig{ID: "light", Name: "light", Manual: manual}, rly, Guards{
		TurnOn:  func(in Inputs) bool { return in.Day == lit },
		TurnOff: func(in Inputs) bool { return in.Day == dark },
	}, notes, logger)
}

// ID returns the device id used by the control surface.
func (c *Controller) ID() string { return c.id }

// Name returns the display name.
func (c *Controller) Name() string { return c.name }

// Check runs one automatic evaluation. In manual mode only the interlock
// is applied and the state relabelled from the relay.
func (c *Controller) Check(in Inputs) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if c.guards.Inhibit != nil {
		if inhibit, reason := c.guards.Inhibit(in); inhibit {
			if c.relay.IsOn() {
				c.driveLocked(false, "")
			}
			c.notes.Raise(c.kindInhibited, reason)
			c.inhibited = true
			c.resolveLocked()
			return
		}
		if c.inhibited {
			c.notes.Clear(c.kindInhibited.Name)
			c.inhibited = false
		}
	}

	if c.state.Mode() == ModeManual {
		c.resolveLocked()
		return
	}

	on := c.relay.IsOn()
	switch {
	case !on && c.guards.TurnOn != nil && c.guards.TurnOn(in):
		c.driveLocked(true, "automatically")
	case on && c.guards.TurnOff != nil && c.guards.TurnOff(in):
		c.driveLocked(false, "automatically")
	default:
		c.resolveLocked()
	}
}

// SetMode switches to m.
func (c *Controller) SetMode(m Mode) error {
	switch m {
	case ModeAuto:
		c.SetAuto()
	case ModeManual:
		c.SetManual()
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, m)
	}
	return nil
}

// SetAuto re-arms automatic control. The next Check resolves the power
// state. A controller already in auto is left alone.
func (c *Controller) SetAuto() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Mode() == ModeAuto {
		return
	}
	c.state = next(c.state, evSetAuto)
	c.notes.Raise(c.kindAuto)
	c.logger.Info("mode changed", zap.String("device", c.id), zap.String("mode", string(ModeAuto)))
}

// SetManual hands power to the operator.
func (c *Controller) SetManual() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setManualLocked()
}

func (c *Controller) setManualLocked() {
	if c.state.Mode() == ModeManual {
		return
	}
	c.state = next(c.state, evSetManual)
	c.notes.Raise(c.kindManual)
	c.logger.Info("mode changed", zap.String("device", c.id), zap.String("mode", string(ModeManual)))
	c.resolveLocked()
}

// TurnOn is the operator command. It switches to manual first.
func (c *Controller) TurnOn() error {
	return c.SetPower(true)
}

// TurnOff is the operator command. It switches to manual first.
func (c *Controller) TurnOff() error {
	return c.SetPower(false)
}

// SetPower switches to manual and drives the relay. Turning on an
// inhibited device fails with ErrInhibited.
func (c *Controller) SetPower(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%s: %w", c.name, ErrClosed)
	}
	if on && c.inhibited {
		return fmt.Errorf("%s: %w", c.name, ErrInhibited)
	}
	c.setManualLocked()
	if c.relay.IsOn() == on {
		return nil
	}
	return c.driveLocked(on, "manually")
}

// Reset drives the relay to its safe level without changing mode and
// latches the controller closed.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	err := c.relay.Reset()
	c.resolveLocked()
	return err
}

// driveLocked switches the relay and relabels. how is the notification
// suffix; empty skips the notification.
func (c *Controller) driveLocked(on bool, how string) error {
	var err error
	if on {
		err = c.relay.On()
	} else {
		err = c.relay.Off()
	}
	if err != nil {
		c.notes.Raise(kindRelayFailed, c.name, err)
		c.logger.Error("relay write failed", zap.String("device", c.id), zap.Error(err))
		c.resolveLocked()
		return err
	}
	c.notes.Clear(kindRelayFailed.Name)
	c.resolveLocked()
	if how != "" {
		k := c.kindOff
		if on {
			k = c.kindOn
		}
		c.notes.Raise(k, how)
	}
	c.logger.Info("relay switched", zap.String("device", c.id), zap.Bool("on", on), zap.String("state", string(c.state)))
	return nil
}

// resolveLocked moves to the power state of the current mode matching the
// relay level.
func (c *Controller) resolveLocked() {
	c.state = next(c.state, powerEvent(c.relay.IsOn()))
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	return c.State().Mode()
}

// IsOn reports the relay level.
func (c *Controller) IsOn() bool {
	return c.relay.IsOn()
}

// Inhibited reports whether the interlock held the relay off on the last
// Check.
func (c *Controller) Inhibited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inhibited
}

// Status returns the worst active severity of the device.
func (c *Controller) Status() notify.Severity {
	return c.notes.Status()
}

// Snapshot returns the device state for display.
func (c *Controller) Snapshot() Snapshot {
	st := c.State()
	return Snapshot{
		ID:     c.id,
		Name:   c.name,
		Mode:   st.Mode(),
		State:  string(st),
		On:     c.relay.IsOn(),
		Status: c.notes.Status(),
	}
}
