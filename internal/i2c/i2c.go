// Package i2c exposes a Linux i2c-dev adapter as a tinygo drivers.I2C bus so
// the tinygo sensor drivers run unchanged on a Raspberry Pi.
package i2c

import "errors"

// ErrClosed is returned by Tx after Close.
var ErrClosed = errors.New("i2c: bus closed")
