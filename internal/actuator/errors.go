package actuator

import "errors"

var (
	// ErrInvalidMode is returned for a mode other than auto or manual.
	ErrInvalidMode = errors.New("actuator: invalid mode")

	// ErrInvalidAction is returned for a door action other than open or
	// close.
	ErrInvalidAction = errors.New("actuator: invalid door action")

	// ErrInhibited is returned when an operator tries to power a device
	// whose safety interlock is engaged.
	ErrInhibited = errors.New("actuator: device inhibited")

	// ErrDriveFailed is returned when a door drive sequence did not reach
	// its target switch.
	ErrDriveFailed = errors.New("actuator: door drive failed")

	// ErrClosed is returned by operator commands after Reset.
	ErrClosed = errors.New("actuator: device shut down")
)
