package sensor

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

// DefaultBMP280Address is the I2C address with SDO tied low.
const DefaultBMP280Address = 0x76

// BMP280 is a Bosch BMP280 on an I2C bus.
type BMP280 struct {
	bus         i2c.BusCloser
	dev         *bmxx80.Dev
	seaLevelHPa float64
}

// OpenBMP280 opens the I2C bus (empty name picks the first bus) and probes
// the sensor at addr. A missing sensor yields ErrSensorUnavailable.
func OpenBMP280(busName string, addr uint16, seaLevelHPa float64) (*BMP280, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("%w: open i2c bus %q: %v", ErrSensorUnavailable, busName, err)
	}
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("%w: bmp280 at 0x%02x: %v", ErrSensorUnavailable, addr, err)
	}
	if seaLevelHPa <= 0 {
		seaLevelHPa = DefaultSeaLevelHPa
	}
	return &BMP280{bus: bus, dev: dev, seaLevelHPa: seaLevelHPa}, nil
}

// Sense performs one forced-mode measurement.
func (b *BMP280) Sense() (Reading, error) {
	var env physic.Env
	if err := b.dev.Sense(&env); err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrSensorUnavailable, err)
	}
	t := float64(env.Temperature-physic.ZeroCelsius) / float64(physic.Kelvin)
	p := float64(env.Pressure) / float64(100*physic.Pascal)
	return Reading{
		TemperatureC: t,
		PressureHPa:  p,
		AltitudeM:    Altitude(p, b.seaLevelHPa),
	}, nil
}

// Close halts the sensor and releases the bus.
func (b *BMP280) Close() error {
	return errors.Join(b.dev.Halt(), b.bus.Close())
}
