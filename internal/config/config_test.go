package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/antural/motorhome-central/internal/state"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestDefaultReferenceWiring(t *testing.T) {
	cfg := Default()
	wantPins := []int{5, 12, 14, 27, 26, 25}
	chans := cfg.Channels()
	if len(chans) != len(wantPins) {
		t.Fatalf("expected %d channels, got %d", len(wantPins), len(chans))
	}
	for i, ch := range chans {
		if ch.ID != i+1 {
			t.Errorf("channel %d: id %d", i, ch.ID)
		}
		if ch.Pin != wantPins[i] {
			t.Errorf("channel %d: pin %d, want %d", ch.ID, ch.Pin, wantPins[i])
		}
	}
	if chans[0].Label != "Luz Central" || chans[5].Label != "Caldera" {
		t.Errorf("unexpected labels %q, %q", chans[0].Label, chans[5].Label)
	}
	if !cfg.GPIO.ActiveLow {
		t.Error("reference wiring is active low")
	}
	if cfg.Sensor.Interval != 2*time.Second || cfg.Sensor.Address != 0x76 || cfg.Sensor.SeaLevelHPa != 1013.25 {
		t.Errorf("unexpected sensor defaults %+v", cfg.Sensor)
	}
}

func TestAuxiliaryTelemetry(t *testing.T) {
	aux := Default().AuxiliaryTelemetry()
	if len(aux.Tanks) != 3 || aux.Tanks[0].Level != 74 || aux.Tanks[2].Name != "Negras" {
		t.Errorf("unexpected tanks %+v", aux.Tanks)
	}
	if aux.Battery.SOC != "82%" || aux.Battery.Cycles != "140" {
		t.Errorf("unexpected battery %+v", aux.Battery)
	}
	if aux.ExteriorTemp != "29.1" || aux.AirQuality != "Buena" || aux.Gas != "0 ppm" {
		t.Errorf("unexpected aux %+v", aux)
	}
}

func TestDefaultBatteryKeepsUnits(t *testing.T) {
	got := state.NewAggregateJSON(state.Status{Auxiliary: Default().AuxiliaryTelemetry()})
	want := map[string][2]string{
		"bat_soc":     {got.BatSOC, "82%"},
		"bat_volt":    {got.BatVolt, "13.2V"},
		"bat_current": {got.BatCurrent, "33.2A"},
		"bat_temp":    {got.BatTemp, "27 C"},
		"bat_cycles":  {got.BatCycles, "140"},
	}
	for key, v := range want {
		if v[0] != v[1] {
			t.Errorf("%s: got %q, want %q", key, v[0], v[1])
		}
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":80" {
		t.Errorf("expected default addr, got %q", cfg.HTTP.Addr)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":8080"
gpio:
  driver: fake
  active_low: false
relays:
  - label: Bomba
    pin: 17
  - label: Luz
    pin: 18
sensor:
  driver: none
  interval: 5s
  address: 0x77
mqtt:
  broker: tcp://192.168.4.2:1883
  heartbeat: 1m
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("addr: got %q", cfg.HTTP.Addr)
	}
	if cfg.GPIO.Driver != "fake" || cfg.GPIO.ActiveLow {
		t.Errorf("gpio: got %+v", cfg.GPIO)
	}
	if cfg.GPIO.Chip != "gpiochip0" {
		t.Errorf("unset chip should keep default, got %q", cfg.GPIO.Chip)
	}
	if len(cfg.Relays) != 2 || cfg.Relays[1].Pin != 18 {
		t.Errorf("relays should be replaced, got %+v", cfg.Relays)
	}
	if cfg.Sensor.Driver != "none" || cfg.Sensor.Interval != 5*time.Second || cfg.Sensor.Address != 0x77 {
		t.Errorf("sensor: got %+v", cfg.Sensor)
	}
	if cfg.Sensor.ReadTimeout != time.Second {
		t.Errorf("unset read_timeout should keep default, got %v", cfg.Sensor.ReadTimeout)
	}
	if cfg.MQTT.Broker != "tcp://192.168.4.2:1883" || cfg.MQTT.Heartbeat != time.Minute {
		t.Errorf("mqtt: got %+v", cfg.MQTT)
	}
	if cfg.MQTT.ClientID != "motorhome-central" {
		t.Errorf("unset client_id should keep default, got %q", cfg.MQTT.ClientID)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := writeConfig(t, "relays: [\n")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"no relays", func(c *Config) { c.Relays = nil }, "at least one relay"},
		{"duplicate pin", func(c *Config) { c.Relays[1].Pin = 5 }, "pin 5 already used by relay 1"},
		{"negative pin", func(c *Config) { c.Relays[0].Pin = -1 }, "invalid pin"},
		{"gpio driver", func(c *Config) { c.GPIO.Driver = "sysfs" }, "unknown gpio driver"},
		{"sensor driver", func(c *Config) { c.Sensor.Driver = "bme680" }, "unknown sensor driver"},
		{"interval", func(c *Config) { c.Sensor.Interval = 0 }, "interval must be positive"},
		{"read timeout", func(c *Config) { c.Sensor.ReadTimeout = 0 }, "read_timeout must be positive"},
		{"sea level", func(c *Config) { c.Sensor.SeaLevelHPa = 0 }, "sea_level_hpa"},
		{"poll", func(c *Config) { c.Poll = 0 }, "poll must be positive"},
		{"heartbeat", func(c *Config) { c.MQTT.Heartbeat = -time.Second }, "heartbeat"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "unknown log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Poll = 0
	cfg.GPIO.Driver = "sysfs"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "poll") || !strings.Contains(err.Error(), "sysfs") {
		t.Errorf("expected both problems, got %q", err)
	}
}
