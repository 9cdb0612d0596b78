package state

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// State is the logical state of a relay channel.
type State string

const (
	On  State = "ON"
	Off State = "OFF"
)

// Invert returns the logical complement.
func (s State) Invert() State {
	if s == On {
		return Off
	}
	return On
}

// Flag returns 1 for ON and 0 otherwise.
func (s State) Flag() int {
	if s == On {
		return 1
	}
	return 0
}

// Valid reports whether s is ON or OFF.
func (s State) Valid() bool {
	return s == On || s == Off
}

// ParseState parses "ON"/"OFF" (also "1"/"0").
func ParseState(v string) (State, error) {
	switch v {
	case "ON", "on", "1":
		return On, nil
	case "OFF", "off", "0":
		return Off, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidState, v)
}

var (
	// ErrInvalidChannel is returned for channel identifiers outside 1..N.
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrInvalidState is returned for a desired state that is neither ON nor OFF.
	ErrInvalidState = errors.New("invalid state")
)

// Channel is the fixed identity of one relay output.
type Channel struct {
	ID    int // 1-based
	Label string
	Pin   int
}

// ChannelState pairs a channel with its logical state at one instant.
type ChannelState struct {
	Channel
	State State
}

// Sentinel is displayed in place of an unavailable sensor value.
const Sentinel = "--"

// SensorSnapshot is one validated sensor sample. When Valid is false every
// numeric field is meaningless and renders as Sentinel.
type SensorSnapshot struct {
	Valid        bool
	TemperatureC float64
	PressureHPa  float64
	AltitudeM    float64
	SampledAt    time.Time
}

// UnavailableSnapshot returns the marker published when no valid sample exists.
func UnavailableSnapshot(at time.Time) SensorSnapshot {
	return SensorSnapshot{SampledAt: at}
}

// Temperature formats the temperature with one decimal, or Sentinel.
func (s SensorSnapshot) Temperature() string {
	return s.format(s.TemperatureC, 1)
}

// Pressure formats the pressure in whole hPa, or Sentinel.
func (s SensorSnapshot) Pressure() string {
	return s.format(s.PressureHPa, 0)
}

// Altitude formats the altitude in whole metres, or Sentinel.
func (s SensorSnapshot) Altitude() string {
	return s.format(s.AltitudeM, 0)
}

func (s SensorSnapshot) format(v float64, decimals int) string {
	if !s.Valid || math.IsNaN(v) || math.IsInf(v, 0) {
		return Sentinel
	}
	return fmt.Sprintf("%.*f", decimals, v)
}

// Tank is a placeholder tank level in percent.
type Tank struct {
	Name  string
	Level int
}

// Battery holds placeholder battery-management values, republished verbatim.
type Battery struct {
	SOC         string
	Voltage     string
	Current     string
	Temperature string
	Cycles      string
	Status      string
	Balance     string
}

// Auxiliary is telemetry with no sensor behind it (or an optional exterior
// thermometer). It is stored and republished as-is.
type Auxiliary struct {
	Tanks        []Tank
	Battery      Battery
	ExteriorTemp string
	AirQuality   string
	Gas          string
}

func (a Auxiliary) clone() Auxiliary {
	c := a
	c.Tanks = append([]Tank(nil), a.Tanks...)
	return c
}

// Status is the aggregate view: relays, sensor and auxiliary telemetry as of Now.
type Status struct {
	Relays        []ChannelState
	Sensor        SensorSnapshot
	Auxiliary     Auxiliary
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
}

// Uptime returns the duration since the daemon started.
func (s Status) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}
