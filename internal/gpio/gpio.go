// Package gpio provides GPIO pin access with hardware abstraction.
// The real implementations use the Linux GPIO character device or /dev/gpiomem.
// The fake implementation allows testing without hardware.
package gpio

import "errors"

// Level is the electrical level of a pin.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

// Invert returns the opposite level.
func (l Level) Invert() Level {
	if l == Low {
		return High
	}
	return Low
}

func (l Level) String() string {
	if l == Low {
		return "LOW"
	}
	return "HIGH"
}

// ErrPinNotConfigured is returned when a pin is accessed before Setup.
var ErrPinNotConfigured = errors.New("gpio: pin not configured")

// Driver drives and reads back output pins.
type Driver interface {
	// Setup configures pin as an output driven to initial.
	Setup(pin int, initial Level) error

	// Read returns the current level of pin.
	Read(pin int) (Level, error)

	// Write drives pin to level.
	Write(pin int, level Level) error

	// Close releases GPIO resources.
	Close() error
}

// Driver names accepted by Open.
const (
	DriverChip = "gpiocdev"
	DriverRPIO = "rpio"
	DriverFake = "fake"
)

// DefaultChip is the GPIO character device used by the gpiocdev driver.
const DefaultChip = "gpiochip0"

// Open returns the named driver. chip is only used by the gpiocdev driver.
func Open(name, chip string) (Driver, error) {
	switch name {
	case DriverChip, "":
		if chip == "" {
			chip = DefaultChip
		}
		d, err := NewChipDriver(chip)
		if err != nil {
			return nil, err
		}
		return d, nil
	case DriverRPIO:
		d, err := NewRPIODriver()
		if err != nil {
			return nil, err
		}
		return d, nil
	case DriverFake:
		return NewFakeDriver(), nil
	default:
		return nil, errors.New("gpio: unknown driver " + name)
	}
}
