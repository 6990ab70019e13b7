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

// DoorState is the door's mode crossed with its position relative to the
// time of day.
type DoorState string

const (
	DoorAuto              DoorState = "auto"
	DoorManual            DoorState = "manual"
	DoorAutoOpenDay       DoorState = "auto-open-day"
	DoorAutoClosedNight   DoorState = "auto-closed-night"
	DoorManualOpenDay     DoorState = "manual-open-day"
	DoorManualClosedDay   DoorState = "manual-closed-day"
	DoorManualOpenNight   DoorState = "manual-open-night"
	DoorManualClosedNight DoorState = "manual-closed-night"
	DoorManualInvalid     DoorState = "manual-invalid"
)

// Mode returns the mode half of the state.
func (s DoorState) Mode() Mode {
	if strings.HasPrefix(string(s), string(ModeManual)) {
		return ModeManual
	}
	return ModeAuto
}

// doorState labels a settled door. An auto door in the wrong position for
// the time of day stays transient auto until a drive moves it.
func doorState(m Mode, pos sensor.Position, day bool) DoorState {
	if pos == sensor.PositionInvalid {
		return DoorManualInvalid
	}
	open := pos == sensor.PositionOpen
	if m == ModeAuto {
		switch {
		case open && day:
			return DoorAutoOpenDay
		case !open && !day:
			return DoorAutoClosedNight
		}
		return DoorAuto
	}
	switch {
	case open && day:
		return DoorManualOpenDay
	case open:
		return DoorManualOpenNight
	case day:
		return DoorManualClosedDay
	}
	return DoorManualClosedNight
}

// DoorAction is an operator door command.
type DoorAction string

const (
	ActionOpen  DoorAction = "open"
	ActionClose DoorAction = "close"
)

// ParseDoorAction accepts "open" or "close".
func ParseDoorAction(s string) (DoorAction, bool) {
	switch DoorAction(strings.ToLower(s)) {
	case ActionOpen:
		return ActionOpen, true
	case ActionClose:
		return ActionClose, true
	}
	return "", false
}

var (
	kindDoorInvalid = notify.Kind{
		Name:     "door_invalid",
		Severity: notify.Error,
		Template: "door sensors are in invalid state",
		Single:   true,
	}
	kindDoorOpenFailed = notify.Kind{
		Name:     "open_failed",
		Severity: notify.Error,
		Template: "failed to open door",
		Single:   true,
		Clears:   []string{"close_failed"},
	}
	kindDoorCloseFailed = notify.Kind{
		Name:     "close_failed",
		Severity: notify.Error,
		Template: "failed to close door",
		Single:   true,
		Clears:   []string{"open_failed"},
	}
	kindDoorOpened = notify.Kind{
		Name:      "opened",
		Severity:  notify.Info,
		Template:  "door opened (%s)",
		AutoClear: true,
		Clears:    []string{"open_failed", "close_failed", "closed_day"},
	}
	kindDoorClosed = notify.Kind{
		Name:      "closed",
		Severity:  notify.Info,
		Template:  "door closed (%s)",
		AutoClear: true,
		Clears:    []string{"open_failed", "close_failed", "open_night"},
	}
	kindDoorClosedDay = notify.Kind{
		Name:     "closed_day",
		Severity: notify.Warn,
		Template: "Door is in MANUAL mode, and is closed during the day!",
		Single:   true,
	}
	kindDoorOpenNight = notify.Kind{
		Name:     "open_night",
		Severity: notify.Warn,
		Template: "Door is in MANUAL mode, and is open during the night!",
		Single:   true,
	}
)

// Door drives the door motor through an open relay and a close relay and
// confirms travel with the top and bottom switches.
//
// op is held for a whole check or drive sequence so the operator and the
// cycle never interleave relay writes. mu guards only the state fields so
// status reads never wait on a drive.
type Door struct {
	openRelay  *relay.Relay
	closeRelay *relay.Relay
	sensor     *sensor.DoorSensor
	notes      *notify.Registry
	logger     *zap.Logger
	kindManual notify.Kind
	kindAuto   notify.Kind

	op     sync.Mutex
	closed bool // guarded by op

	mu    sync.RWMutex
	mode  Mode
	state DoorState
	day   bool
}

// NewDoor creates the door. Both relays must start de-energized.
func NewDoor(openRelay, closeRelay *relay.Relay, ds *sensor.DoorSensor, manual bool, notes *notify.Registry, logger *zap.Logger) *Door {
	if logger == nil {
		logger = zap.NewNop()
	}
	km, ka := modeKinds("door")
	d := &Door{
		openRelay:  openRelay,
		closeRelay: closeRelay,
		sensor:     ds,
		notes:      notes,
		logger:     logger,
		kindManual: km,
		kindAuto:   ka,
		mode:       ModeAuto,
		state:      DoorAuto,
	}
	if manual {
		d.mode = ModeManual
		d.state = DoorManual
		notes.Raise(km)
	}
	return d
}

// ID returns the device id used by the control surface.
func (d *Door) ID() string { return "door" }

// Name returns the display name.
func (d *Door) Name() string { return "door" }

// Check reads the door switches and, in auto mode, drives the door to match
// the time of day. An unknown day counts as night so the flock is shut in.
func (d *Door) Check(day sensor.DayState) {
	d.op.Lock()
	defer d.op.Unlock()
	if d.closed {
		return
	}

	isDay := day == sensor.Day
	d.mu.Lock()
	d.day = isDay
	d.mu.Unlock()

	pos := d.sensor.ReadAndCheck()
	if pos == sensor.PositionInvalid {
		d.forceManual()
		d.notes.Raise(kindDoorInvalid)
		d.setState(DoorManualInvalid)
		return
	}
	d.notes.Clear(kindDoorInvalid.Name)

	if d.Mode() == ModeAuto {
		var err error
		switch {
		case isDay && pos == sensor.PositionClosed:
			err = d.driveOpen("automatically")
		case !isDay && pos == sensor.PositionOpen:
			err = d.driveClose("automatically")
		}
		if err != nil {
			return
		}
		d.setState(doorState(ModeAuto, d.sensor.Position(), isDay))
		return
	}

	if isDay && pos == sensor.PositionClosed {
		d.notes.Raise(kindDoorClosedDay)
	} else {
		d.notes.Clear(kindDoorClosedDay.Name)
	}
	if !isDay && pos == sensor.PositionOpen {
		d.notes.Raise(kindDoorOpenNight)
	} else {
		d.notes.Clear(kindDoorOpenNight.Name)
	}
	d.setState(doorState(ModeManual, pos, isDay))
}

// Open is the operator command: switch to manual, then drive open. It
// returns after the switches confirm or the wait times out.
func (d *Door) Open() error {
	return d.Do(ActionOpen)
}

// Close is the operator command: switch to manual, then drive closed.
func (d *Door) Close() error {
	return d.Do(ActionClose)
}

// Do runs an operator action.
func (d *Door) Do(a DoorAction) error {
	if a != ActionOpen && a != ActionClose {
		return fmt.Errorf("door action %q: %w", a, ErrInvalidAction)
	}

	d.op.Lock()
	defer d.op.Unlock()
	if d.closed {
		return fmt.Errorf("door: %w", ErrClosed)
	}

	d.setManual()
	d.sensor.ReadAndCheck()
	var err error
	if a == ActionOpen {
		err = d.driveOpen("manually")
	} else {
		err = d.driveClose("manually")
	}
	if err != nil {
		return err
	}
	d.mu.RLock()
	day := d.day
	d.mu.RUnlock()
	d.setState(doorState(ModeManual, d.sensor.Position(), day))
	return nil
}

func (d *Door) driveOpen(how string) error {
	if d.sensor.Position() == sensor.PositionOpen {
		return nil
	}
	return d.drive(d.openRelay, d.closeRelay, d.sensor.Bottom(), d.sensor.Top(), kindDoorOpenFailed, kindDoorOpened, how)
}

func (d *Door) driveClose(how string) error {
	if d.sensor.Position() == sensor.PositionClosed {
		return nil
	}
	return d.drive(d.closeRelay, d.openRelay, d.sensor.Top(), d.sensor.Bottom(), kindDoorCloseFailed, kindDoorClosed, how)
}

// drive energizes on until leaving is released and arriving is tripped. on
// is de-energized whatever the outcome; other is never energized. Caller
// holds op.
func (d *Door) drive(on, other *relay.Relay, leaving, arriving *sensor.SwitchSensor, failed, done notify.Kind, how string) error {
	d.logger.Info("door drive started", zap.String("relay", on.Name()), zap.String("how", how))

	ok := true
	if err := other.Off(); err != nil {
		d.logger.Error("door relay write failed", zap.String("relay", other.Name()), zap.Error(err))
		ok = false
	}
	if ok {
		if err := on.On(); err != nil {
			d.logger.Error("door relay write failed", zap.String("relay", on.Name()), zap.Error(err))
			ok = false
		}
	}
	if ok {
		ok = leaving.WaitForTripped(false) && arriving.WaitForTripped(true)
	}
	if err := on.Off(); err != nil {
		d.logger.Error("door relay write failed", zap.String("relay", on.Name()), zap.Error(err))
		ok = false
	}

	if !ok {
		d.forceManual()
		d.notes.Raise(failed)
		d.setState(DoorManualInvalid)
		d.logger.Error("door drive failed", zap.String("relay", on.Name()))
		return fmt.Errorf("%s: %w", failed.Template, ErrDriveFailed)
	}

	d.sensor.Check()
	d.notes.Raise(done, how)
	d.logger.Info("door drive finished", zap.String("relay", on.Name()), zap.String("position", string(d.sensor.Position())))
	return nil
}

// SetMode switches to m.
func (d *Door) SetMode(m Mode) error {
	switch m {
	case ModeAuto:
		d.SetAuto()
	case ModeManual:
		d.SetManual()
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, m)
	}
	return nil
}

// SetAuto re-arms automatic control, waiting for any drive in progress.
func (d *Door) SetAuto() {
	d.op.Lock()
	defer d.op.Unlock()

	d.mu.Lock()
	if d.mode == ModeAuto {
		d.mu.Unlock()
		return
	}
	d.mode = ModeAuto
	d.state = DoorAuto
	d.mu.Unlock()

	d.notes.Clear(kindDoorClosedDay.Name, kindDoorOpenNight.Name)
	d.notes.Raise(d.kindAuto)
	d.logger.Info("mode changed", zap.String("device", "door"), zap.String("mode", string(ModeAuto)))
}

// SetManual hands the door to the operator.
func (d *Door) SetManual() {
	d.op.Lock()
	defer d.op.Unlock()
	d.setManual()
}

// setManual switches mode; the caller holds op.
func (d *Door) setManual() {
	d.mu.Lock()
	if d.mode == ModeManual {
		d.mu.Unlock()
		return
	}
	d.mode = ModeManual
	d.state = DoorManual
	d.mu.Unlock()

	d.notes.Raise(d.kindManual)
	d.logger.Info("mode changed", zap.String("device", "door"), zap.String("mode", string(ModeManual)))
}

// forceManual latches manual after a fault; only an operator re-arms auto.
func (d *Door) forceManual() {
	if d.Mode() == ModeAuto {
		d.logger.Warn("door forced to manual mode")
	}
	d.setManual()
}

// Reset de-energizes both drive relays, waiting for any drive in progress.
// Later checks and operator actions do nothing.
func (d *Door) Reset() error {
	d.op.Lock()
	defer d.op.Unlock()
	d.closed = true
	err1 := d.openRelay.Reset()
	err2 := d.closeRelay.Reset()
	if err1 != nil {
		return err1
	}
	return err2
}

func (d *Door) setState(s DoorState) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// State returns the current state without waiting on a drive.
func (d *Door) State() DoorState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Mode returns the current mode without waiting on a drive.
func (d *Door) Mode() Mode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mode
}

// Position returns the position from the last switch read.
func (d *Door) Position() sensor.Position {
	return d.sensor.Position()
}

// Status returns the worst active severity of the door.
func (d *Door) Status() notify.Severity {
	return d.notes.Status()
}

// Snapshot returns the door state for display.
func (d *Door) Snapshot() Snapshot {
	d.mu.RLock()
	m, st := d.mode, d.state
	d.mu.RUnlock()
	return Snapshot{
		ID:       d.ID(),
		Name:     d.Name(),
		Mode:     m,
		State:    string(st),
		On:       d.openRelay.IsOn() || d.closeRelay.IsOn(),
		Position: d.sensor.Position(),
		Status:   d.notes.Status(),
	}
}
