// Package metrics exposes relay and sensor activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/antural/motorhome-central/internal/state"
)

// Collector records relay switches and sensor samples. It implements
// relay.Observer and sensor.Observer.
type Collector struct {
	registry *prometheus.Registry
	labels   map[int]string

	relaySwitches  *prometheus.CounterVec
	relayState     *prometheus.GaugeVec
	sensorUp       prometheus.Gauge
	temperature    prometheus.Gauge
	pressure       prometheus.Gauge
	altitude       prometheus.Gauge
	sampleDuration prometheus.Histogram
	mqttConnected  prometheus.Gauge
}

// New creates a Collector on its own registry, with every channel reported
// OFF until the first switch.
func New(channels []state.Channel) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		labels:   make(map[int]string, len(channels)),
		relaySwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "motorhome_relay_switches_total",
			Help: "Relay writes by channel and resulting state.",
		}, []string{"channel", "state"}),
		relayState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "motorhome_relay_on",
			Help: "Last state written to each relay (1 on, 0 off).",
		}, []string{"channel", "label"}),
		sensorUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "motorhome_sensor_available",
			Help: "Whether the last sensor sample was valid.",
		}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "motorhome_temperature_celsius",
			Help: "Interior temperature from the last valid sample.",
		}),
		pressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "motorhome_pressure_hpa",
			Help: "Barometric pressure from the last valid sample.",
		}),
		altitude: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "motorhome_altitude_meters",
			Help: "Altitude derived from the last valid sample.",
		}),
		sampleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "motorhome_sensor_sample_duration_seconds",
			Help:    "Time spent in each sensor sampling cycle.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2},
		}),
		mqttConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "motorhome_mqtt_connected",
			Help: "Whether the MQTT broker connection is open.",
		}),
	}

	c.registry.MustRegister(
		c.relaySwitches,
		c.relayState,
		c.sensorUp,
		c.temperature,
		c.pressure,
		c.altitude,
		c.sampleDuration,
		c.mqttConnected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	for _, ch := range channels {
		c.labels[ch.ID] = ch.Label
		c.relayState.WithLabelValues(strconv.Itoa(ch.ID), ch.Label).Set(0)
	}
	return c
}

// RelaySwitched records a relay write.
func (c *Collector) RelaySwitched(ch int, s state.State) {
	id := strconv.Itoa(ch)
	c.relaySwitches.WithLabelValues(id, string(s)).Inc()
	c.relayState.WithLabelValues(id, c.labels[ch]).Set(float64(s.Flag()))
}

// SampleTaken records one sampling cycle. Readings are only updated from
// valid snapshots.
func (c *Collector) SampleTaken(snap state.SensorSnapshot, took time.Duration) {
	c.sampleDuration.Observe(took.Seconds())
	if !snap.Valid {
		c.sensorUp.Set(0)
		return
	}
	c.sensorUp.Set(1)
	c.temperature.Set(snap.TemperatureC)
	c.pressure.Set(snap.PressureHPa)
	c.altitude.Set(snap.AltitudeM)
}

// SetMQTTConnected records the broker connection state.
func (c *Collector) SetMQTTConnected(connected bool) {
	if connected {
		c.mqttConnected.Set(1)
		return
	}
	c.mqttConnected.Set(0)
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
