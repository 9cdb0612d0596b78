//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// ChipDriver is not available on non-Linux platforms.
type ChipDriver struct{}

// NewChipDriver returns an error on non-Linux platforms.
func NewChipDriver(name string) (*ChipDriver, error) {
	return nil, errUnsupported
}

func (d *ChipDriver) Setup(pin int, initial Level) error { return errUnsupported }
func (d *ChipDriver) Read(pin int) (Level, error)        { return Low, errUnsupported }
func (d *ChipDriver) Write(pin int, level Level) error   { return errUnsupported }
func (d *ChipDriver) Close() error                       { return nil }

// RPIODriver is not available on non-Linux platforms.
type RPIODriver struct{}

// NewRPIODriver returns an error on non-Linux platforms.
func NewRPIODriver() (*RPIODriver, error) {
	return nil, errUnsupported
}

func (d *RPIODriver) Setup(pin int, initial Level) error { return errUnsupported }
func (d *RPIODriver) Read(pin int) (Level, error)        { return Low, errUnsupported }
func (d *RPIODriver) Write(pin int, level Level) error   { return errUnsupported }
func (d *RPIODriver) Close() error                       { return nil }
