//go:build !linux

package i2c

import "errors"

var errUnsupported = errors.New("i2c: not supported on this platform (requires Linux)")

// Bus is not available on non-Linux platforms.
type Bus struct{}

// Open returns an error on non-Linux platforms.
func Open(path string) (*Bus, error) {
	return nil, errUnsupported
}

func (b *Bus) Tx(addr uint16, w, r []byte) error { return errUnsupported }

// Close is a no-op on non-Linux platforms.
func (b *Bus) Close() error { return nil }
