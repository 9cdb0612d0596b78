// Package config loads the controller configuration from YAML layered over
// built-in defaults that match the reference wiring.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/antural/motorhome-central/internal/gpio"
	"github.com/antural/motorhome-central/internal/logging"
	"github.com/antural/motorhome-central/internal/state"
)

// Sensor drivers.
const (
	SensorBMP280 = "bmp280"
	SensorFake   = "fake"
	SensorNone   = "none"
)

// Config is the complete daemon configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Poll      time.Duration   `yaml:"poll"`
	Debounce  time.Duration   `yaml:"debounce"`
	GPIO      GPIOConfig      `yaml:"gpio"`
	Relays    []RelayConfig   `yaml:"relays"`
	Sensor    SensorConfig    `yaml:"sensor"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	MDNS      MDNSConfig      `yaml:"mdns"`
	Log       LogConfig       `yaml:"log"`
	Auxiliary AuxiliaryConfig `yaml:"auxiliary"`
}

// HTTPConfig configures the web server.
type HTTPConfig struct {
	Addr        string   `yaml:"addr"` // empty disables the server
	CORSOrigins []string `yaml:"cors_origins"`
	Metrics     bool     `yaml:"metrics"`
}

// GPIOConfig selects the pin driver.
type GPIOConfig struct {
	Driver    string        `yaml:"driver"` // gpiocdev | rpio | fake
	Chip      string        `yaml:"chip"`
	ActiveLow bool          `yaml:"active_low"`
	Settle    time.Duration `yaml:"settle"`
}

// RelayConfig is one relay channel. Channel numbers follow list order.
type RelayConfig struct {
	Label string `yaml:"label"`
	Pin   int    `yaml:"pin"`
}

// SensorConfig configures the interior sensor and the optional exterior
// thermometer.
type SensorConfig struct {
	Driver          string        `yaml:"driver"` // bmp280 | fake | none
	Bus             string        `yaml:"bus"`    // I2C bus name; empty picks the first
	Address         uint16        `yaml:"address"`
	Interval        time.Duration `yaml:"interval"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	SeaLevelHPa     float64       `yaml:"sea_level_hpa"`
	ExteriorDS18B20 string        `yaml:"exterior_ds18b20"` // 1-Wire sensor ID; empty disables
}

// MQTTConfig configures event publishing. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker     string        `yaml:"broker"`
	ClientID   string        `yaml:"client_id"`
	Heartbeat  time.Duration `yaml:"heartbeat"`
	BufferSize int           `yaml:"buffer_size"`
}

// MDNSConfig configures service advertisement.
type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuxiliaryConfig holds the placeholder telemetry reported until real tank
// and battery sensors exist.
type AuxiliaryConfig struct {
	Tanks        []TankConfig  `yaml:"tanks"`
	Battery      BatteryConfig `yaml:"battery"`
	ExteriorTemp string        `yaml:"exterior_temp"`
	AirQuality   string        `yaml:"air_quality"`
	Gas          string        `yaml:"gas"`
}

// TankConfig is one tank level.
type TankConfig struct {
	Name  string `yaml:"name"`
	Level int    `yaml:"level"`
}

// BatteryConfig holds the battery values, reported verbatim.
type BatteryConfig struct {
	SOC         string `yaml:"soc"`
	Voltage     string `yaml:"voltage"`
	Current     string `yaml:"current"`
	Temperature string `yaml:"temperature"`
	Cycles      string `yaml:"cycles"`
	Status      string `yaml:"status"`
	Balance     string `yaml:"balance"`
}

// Default returns the configuration of the reference installation.
func Default() Config {
	return Config{
		HTTP:     HTTPConfig{Addr: ":80", Metrics: true},
		Poll:     250 * time.Millisecond,
		Debounce: 0,
		GPIO: GPIOConfig{
			Driver:    gpio.DriverChip,
			Chip:      gpio.DefaultChip,
			ActiveLow: true,
			Settle:    40 * time.Millisecond,
		},
		Relays: []RelayConfig{
			{Label: "Luz Central", Pin: 5},
			{Label: "Luz Habitacion", Pin: 12},
			{Label: "Alacenas", Pin: 14},
			{Label: "Bomba", Pin: 27},
			{Label: "Heladera", Pin: 26},
			{Label: "Caldera", Pin: 25},
		},
		Sensor: SensorConfig{
			Driver:      SensorBMP280,
			Address:     0x76,
			Interval:    2 * time.Second,
			ReadTimeout: time.Second,
			SeaLevelHPa: 1013.25,
		},
		MQTT: MQTTConfig{
			ClientID:   "motorhome-central",
			Heartbeat:  15 * time.Minute,
			BufferSize: 100,
		},
		MDNS: MDNSConfig{Enabled: true, Instance: "motorhome"},
		Log:  LogConfig{Level: "info", Format: logging.FormatConsole},
		Auxiliary: AuxiliaryConfig{
			Tanks: []TankConfig{
				{Name: "Blancas", Level: 74},
				{Name: "Grises", Level: 51},
				{Name: "Negras", Level: 17},
			},
			Battery: BatteryConfig{
				SOC:         "82%",
				Voltage:     "13.2V",
				Current:     "33.2A",
				Temperature: "27 C",
				Cycles:      "140",
				Status:      "Carga",
				Balance:     "ON",
			},
			ExteriorTemp: "29.1",
			AirQuality:   "Buena",
			Gas:          "0 ppm",
		},
	}
}

// Load reads path over Default and validates the result. An empty path
// returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error

	if c.Poll <= 0 {
		errs = append(errs, errors.New("poll must be positive"))
	}
	if c.Debounce < 0 {
		errs = append(errs, errors.New("debounce must not be negative"))
	}

	switch c.GPIO.Driver {
	case gpio.DriverChip, gpio.DriverRPIO, gpio.DriverFake:
	default:
		errs = append(errs, fmt.Errorf("unknown gpio driver %q", c.GPIO.Driver))
	}
	if c.GPIO.Settle < 0 {
		errs = append(errs, errors.New("gpio settle must not be negative"))
	}

	if len(c.Relays) == 0 {
		errs = append(errs, errors.New("at least one relay is required"))
	}
	pins := make(map[int]int, len(c.Relays))
	for i, r := range c.Relays {
		if r.Pin < 0 {
			errs = append(errs, fmt.Errorf("relay %d: invalid pin %d", i+1, r.Pin))
		}
		if prev, ok := pins[r.Pin]; ok {
			errs = append(errs, fmt.Errorf("relay %d: pin %d already used by relay %d", i+1, r.Pin, prev))
		}
		pins[r.Pin] = i + 1
	}

	switch c.Sensor.Driver {
	case SensorBMP280, SensorFake, SensorNone:
	default:
		errs = append(errs, fmt.Errorf("unknown sensor driver %q", c.Sensor.Driver))
	}
	if c.Sensor.Interval <= 0 {
		errs = append(errs, errors.New("sensor interval must be positive"))
	}
	if c.Sensor.ReadTimeout <= 0 {
		errs = append(errs, errors.New("sensor read_timeout must be positive"))
	}
	if c.Sensor.SeaLevelHPa <= 0 {
		errs = append(errs, errors.New("sensor sea_level_hpa must be positive"))
	}

	if c.MQTT.Heartbeat < 0 {
		errs = append(errs, errors.New("mqtt heartbeat must not be negative"))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Channels returns the relay channels, numbered from 1 in list order.
func (c Config) Channels() []state.Channel {
	out := make([]state.Channel, len(c.Relays))
	for i, r := range c.Relays {
		out[i] = state.Channel{ID: i + 1, Label: r.Label, Pin: r.Pin}
	}
	return out
}

// AuxiliaryTelemetry converts the placeholder telemetry to its state form.
func (c Config) AuxiliaryTelemetry() state.Auxiliary {
	tanks := make([]state.Tank, len(c.Auxiliary.Tanks))
	for i, t := range c.Auxiliary.Tanks {
		tanks[i] = state.Tank{Name: t.Name, Level: t.Level}
	}
	b := c.Auxiliary.Battery
	return state.Auxiliary{
		Tanks: tanks,
		Battery: state.Battery{
			SOC:         b.SOC,
			Voltage:     b.Voltage,
			Current:     b.Current,
			Temperature: b.Temperature,
			Cycles:      b.Cycles,
			Status:      b.Status,
			Balance:     b.Balance,
		},
		ExteriorTemp: c.Auxiliary.ExteriorTemp,
		AirQuality:   c.Auxiliary.AirQuality,
		Gas:          c.Auxiliary.Gas,
	}
}
