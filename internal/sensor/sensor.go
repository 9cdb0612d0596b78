// Package sensor samples the environmental sensor on a fixed cadence and
// publishes validated snapshots to the state store.
package sensor

import (
	"errors"
	"fmt"
	"math"
)

// Reading is one raw sample from the pressure/temperature sensor.
type Reading struct {
	TemperatureC float64
	PressureHPa  float64
	AltitudeM    float64
}

// Sensor produces readings. Sense may block for the device's conversion time.
type Sensor interface {
	Sense() (Reading, error)
	Close() error
}

// Thermometer reads a single temperature in Celsius.
type Thermometer interface {
	Temperature() (float64, error)
}

var (
	// ErrSensorUnavailable means the sensor is absent or not responding.
	ErrSensorUnavailable = errors.New("sensor unavailable")

	// ErrReadTimeout means a read did not finish within the read timeout,
	// or a previous read is still outstanding.
	ErrReadTimeout = errors.New("sensor read timed out")

	// ErrImplausible means a reading is outside physical bounds.
	ErrImplausible = errors.New("implausible reading")
)

// Plausibility bounds (exclusive).
const (
	MinTemperatureC = -50.0
	MaxTemperatureC = 100.0
	MinPressureHPa  = 200.0
	MaxPressureHPa  = 1200.0
)

// DefaultSeaLevelHPa is the reference pressure for altitude.
const DefaultSeaLevelHPa = 1013.25

// Validate reports whether all three values are usable. A reading is
// accepted or rejected as a whole.
func Validate(r Reading) error {
	for _, v := range []float64{r.TemperatureC, r.PressureHPa, r.AltitudeM} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-numeric value", ErrImplausible)
		}
	}
	if r.TemperatureC <= MinTemperatureC || r.TemperatureC >= MaxTemperatureC {
		return fmt.Errorf("%w: temperature %.2f", ErrImplausible, r.TemperatureC)
	}
	if r.PressureHPa <= MinPressureHPa || r.PressureHPa >= MaxPressureHPa {
		return fmt.Errorf("%w: pressure %.2f", ErrImplausible, r.PressureHPa)
	}
	return nil
}

// Altitude returns the barometric altitude in metres for pressure p (hPa)
// relative to sea-level pressure p0 (hPa).
func Altitude(p, p0 float64) float64 {
	return 44330 * (1 - math.Pow(p/p0, 0.1903))
}
