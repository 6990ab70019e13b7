package coop

import "errors"

var (
	// ErrUnknownDevice is returned by the control surface for an id that
	// names no configured device.
	ErrUnknownDevice = errors.New("coop: unknown device")

	// ErrUnsupported is returned when an operation does not apply to the
	// device, such as setting the power of the door.
	ErrUnsupported = errors.New("coop: operation not supported by device")

	// ErrClosed is returned by the control surface after Shutdown.
	ErrClosed = errors.New("coop: controller shut down")
)
