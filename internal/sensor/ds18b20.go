package sensor

import (
	"fmt"

	"github.com/yryz/ds18b20"
)

// DS18B20 is a 1-Wire thermometer identified by its sysfs id (e.g. "28-0316a2793bff").
type DS18B20 struct {
	ID string
}

// Temperature reads the sensor through the w1 kernel driver.
func (d DS18B20) Temperature() (float64, error) {
	t, err := ds18b20.Temperature(d.ID)
	if err != nil {
		return 0, fmt.Errorf("%w: ds18b20 %s: %v", ErrSensorUnavailable, d.ID, err)
	}
	return t, nil
}
