//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// ChipDriver drives pins through the Linux GPIO character device.
type ChipDriver struct {
	chip *gpiocdev.Chip

	mu    sync.Mutex
	lines map[int]*gpiocdev.Line
}

// NewChipDriver opens the named GPIO chip (e.g. "gpiochip0").
func NewChipDriver(name string) (*ChipDriver, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &ChipDriver{
		chip:  chip,
		lines: make(map[int]*gpiocdev.Line),
	}, nil
}

// Setup requests pin as an output with the given initial level.
// Calling Setup again on a requested pin just drives it to initial.
func (d *ChipDriver) Setup(pin int, initial Level) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if line, ok := d.lines[pin]; ok {
		return line.SetValue(int(initial))
	}

	line, err := d.chip.RequestLine(pin, gpiocdev.AsOutput(int(initial)))
	if err != nil {
		return fmt.Errorf("request pin %d: %w", pin, err)
	}
	d.lines[pin] = line
	return nil
}

func (d *ChipDriver) line(pin int) (*gpiocdev.Line, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	line, ok := d.lines[pin]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPinNotConfigured, pin)
	}
	return line, nil
}

// Read returns the level the line is currently driven to.
func (d *ChipDriver) Read(pin int) (Level, error) {
	line, err := d.line(pin)
	if err != nil {
		return Low, err
	}
	v, err := line.Value()
	if err != nil {
		return Low, fmt.Errorf("read pin %d: %w", pin, err)
	}
	if v == 0 {
		return Low, nil
	}
	return High, nil
}

// Write drives the line to level.
func (d *ChipDriver) Write(pin int, level Level) error {
	line, err := d.line(pin)
	if err != nil {
		return err
	}
	if err := line.SetValue(int(level)); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// Close releases all requested lines and the chip.
// Lines keep their last driven level until the kernel reclaims them.
func (d *ChipDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for pin, line := range d.lines {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	d.lines = make(map[int]*gpiocdev.Line)

	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		d.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}
