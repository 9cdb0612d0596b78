package sensor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/antural/motorhome-central/internal/state"
)

// Defaults for SamplerConfig.
const (
	DefaultInterval    = 2000 * time.Millisecond
	DefaultReadTimeout = 1000 * time.Millisecond
)

// Store is where the sampler publishes. *state.Store satisfies it.
type Store interface {
	SetSensor(state.SensorSnapshot)
	SetExteriorTemperature(string)
}

// Observer is notified of every sampling cycle.
type Observer interface {
	SampleTaken(snap state.SensorSnapshot, took time.Duration)
}

// SamplerConfig configures a Sampler.
type SamplerConfig struct {
	Interval    time.Duration
	ReadTimeout time.Duration

	// Exterior, if set, is read every cycle into the exterior temperature.
	Exterior Thermometer

	Logger   *zap.Logger
	Observer Observer
}

type availability int

const (
	unknown availability = iota
	available
	unavailable
)

// Sampler drives the sensor on a fixed cadence. Tick is meant to be called
// from a cooperative loop; it returns immediately unless the interval has
// elapsed.
type Sampler struct {
	sensor   Sensor
	exterior Thermometer
	store    Store

	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	observer Observer

	last    time.Time
	started bool
	status  availability
	extLost bool

	sensorBusy   atomic.Bool
	exteriorBusy atomic.Bool
}

// NewSampler creates a sampler. A nil sensor means the sensor was not found
// at startup: every cycle publishes an unavailable snapshot.
func NewSampler(sensor Sensor, store Store, cfg SamplerConfig) *Sampler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if sensor == nil {
		logger.Warn("sensor not found at startup, publishing unavailable readings until restart")
	}
	return &Sampler{
		sensor:   sensor,
		exterior: cfg.Exterior,
		store:    store,
		interval: cfg.Interval,
		timeout:  cfg.ReadTimeout,
		logger:   logger,
		observer: cfg.Observer,
	}
}

// Due reports whether the sampling interval has elapsed at now.
func (s *Sampler) Due(now time.Time) bool {
	return !s.started || now.Sub(s.last) >= s.interval
}

// Tick samples once if due and reports whether it did. The read is bounded
// by the read timeout; ctx cancellation also abandons it.
func (s *Sampler) Tick(ctx context.Context, now time.Time) bool {
	if !s.Due(now) {
		return false
	}
	s.started = true
	s.last = now

	start := time.Now()
	snap, err := s.sample(ctx, now)
	s.store.SetSensor(snap)
	s.transition(err)
	if s.exterior != nil {
		s.sampleExterior(ctx)
	}
	if s.observer != nil {
		s.observer.SampleTaken(snap, time.Since(start))
	}
	return true
}

func (s *Sampler) sample(ctx context.Context, now time.Time) (state.SensorSnapshot, error) {
	if s.sensor == nil {
		return state.UnavailableSnapshot(now), ErrSensorUnavailable
	}
	r, err := bounded(ctx, &s.sensorBusy, s.timeout, s.sensor.Sense)
	if err != nil {
		return state.UnavailableSnapshot(now), err
	}
	if err := Validate(r); err != nil {
		return state.UnavailableSnapshot(now), err
	}
	return state.SensorSnapshot{
		Valid:        true,
		TemperatureC: r.TemperatureC,
		PressureHPa:  r.PressureHPa,
		AltitudeM:    r.AltitudeM,
		SampledAt:    now,
	}, nil
}

// transition logs availability changes once per change.
func (s *Sampler) transition(err error) {
	if err == nil {
		if s.status != available {
			s.logger.Info("sensor readings available")
		}
		s.status = available
		return
	}
	if s.status != unavailable && !(s.status == unknown && s.sensor == nil) {
		s.logger.Warn("sensor readings unavailable", zap.Error(err))
	}
	s.status = unavailable
}

func (s *Sampler) sampleExterior(ctx context.Context) {
	t, err := bounded(ctx, &s.exteriorBusy, s.timeout, s.exterior.Temperature)
	if err == nil && (t <= MinTemperatureC || t >= MaxTemperatureC) {
		err = fmt.Errorf("%w: exterior temperature %.2f", ErrImplausible, t)
	}
	if err != nil {
		if !s.extLost {
			s.logger.Warn("exterior temperature unavailable", zap.Error(err))
			s.extLost = true
		}
		s.store.SetExteriorTemperature(state.Sentinel)
		return
	}
	if s.extLost {
		s.logger.Info("exterior temperature available")
		s.extLost = false
	}
	s.store.SetExteriorTemperature(fmt.Sprintf("%.1f", t))
}

type result[T any] struct {
	v   T
	err error
}

// bounded runs fn on its own goroutine and waits at most timeout. While an
// abandoned call is still running, further calls fail immediately so a hung
// device never accumulates goroutines.
func bounded[T any](ctx context.Context, busy *atomic.Bool, timeout time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if !busy.CompareAndSwap(false, true) {
		return zero, fmt.Errorf("%w: previous read still outstanding", ErrReadTimeout)
	}

	done := make(chan result[T], 1)
	go func() {
		v, err := fn()
		busy.Store(false)
		done <- result[T]{v: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.v, r.err
	case <-timer.C:
		return zero, fmt.Errorf("%w after %v", ErrReadTimeout, timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
