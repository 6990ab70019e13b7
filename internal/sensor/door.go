package sensor

import "sync"

// Position is the door position derived from the top and bottom switches.
type Position string

const (
	PositionOpen    Position = "open"
	PositionClosed  Position = "closed"
	PositionInvalid Position = "invalid"
)

// PositionOf combines the actuation state of the two door switches. Exactly
// one must be tripped; both or neither is a fault.
func PositionOf(topTripped, bottomTripped bool) Position {
	switch {
	case topTripped && !bottomTripped:
		return PositionOpen
	case bottomTripped && !topTripped:
		return PositionClosed
	}
	return PositionInvalid
}

// DoorSensor is the composite of the top (open-detect) and bottom
// (closed-detect) switches. It raises nothing itself; the door actuator
// owns the fault notification.
type DoorSensor struct {
	top    *SwitchSensor
	bottom *SwitchSensor

	mu  sync.Mutex
	pos Position
}

// NewDoorSensor creates the composite.
func NewDoorSensor(top, bottom *SwitchSensor) *DoorSensor {
	return &DoorSensor{top: top, bottom: bottom, pos: PositionInvalid}
}

// Top returns the open-detect switch.
func (d *DoorSensor) Top() *SwitchSensor { return d.top }

// Bottom returns the closed-detect switch.
func (d *DoorSensor) Bottom() *SwitchSensor { return d.bottom }

// Read samples both switches.
func (d *DoorSensor) Read() {
	d.top.ReadAndCheck()
	d.bottom.ReadAndCheck()
}

// Check derives the position from the last switch reads.
func (d *DoorSensor) Check() Position {
	pos := PositionInvalid
	if d.top.Check() != ContactUnknown && d.bottom.Check() != ContactUnknown {
		pos = PositionOf(d.top.Tripped(), d.bottom.Tripped())
	}
	d.mu.Lock()
	d.pos = pos
	d.mu.Unlock()
	return pos
}

// ReadAndCheck reads both switches then checks.
func (d *DoorSensor) ReadAndCheck() Position {
	d.Read()
	return d.Check()
}

// Position returns the position from the last Check.
func (d *DoorSensor) Position() Position {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos
}
