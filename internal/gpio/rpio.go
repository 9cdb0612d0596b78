//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// RPIODriver drives pins through /dev/gpiomem on a Raspberry Pi.
// Pin numbers are BCM numbers.
type RPIODriver struct {
	mu         sync.Mutex
	configured map[int]bool
}

// NewRPIODriver maps GPIO memory. Only one RPIODriver may be open at a time.
func NewRPIODriver() (*RPIODriver, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio memory: %w", err)
	}
	return &RPIODriver{configured: make(map[int]bool)}, nil
}

// Setup switches pin to output mode and drives it to initial.
func (d *RPIODriver) Setup(pin int, initial Level) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := rpio.Pin(pin)
	// Write before switching direction so the relay never glitches on.
	p.Write(rpio.State(initial))
	p.Output()
	p.Write(rpio.State(initial))
	d.configured[pin] = true
	return nil
}

func (d *RPIODriver) pin(pin int) (rpio.Pin, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.configured[pin] {
		return 0, fmt.Errorf("%w: %d", ErrPinNotConfigured, pin)
	}
	return rpio.Pin(pin), nil
}

// Read returns the pin level from the GPIO level register.
func (d *RPIODriver) Read(pin int) (Level, error) {
	p, err := d.pin(pin)
	if err != nil {
		return Low, err
	}
	if p.Read() == rpio.Low {
		return Low, nil
	}
	return High, nil
}

// Write drives the pin to level.
func (d *RPIODriver) Write(pin int, level Level) error {
	p, err := d.pin(pin)
	if err != nil {
		return err
	}
	p.Write(rpio.State(level))
	return nil
}

// Close unmaps GPIO memory. Pins keep their last driven level.
func (d *RPIODriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configured = make(map[int]bool)
	if err := rpio.Close(); err != nil {
		return fmt.Errorf("close gpio memory: %w", err)
	}
	return nil
}
