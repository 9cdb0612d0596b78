// Package state holds the authoritative in-memory model of relay and sensor
// state and arbitrates concurrent access to it.
//
// Relay state is a cache of the hardware: every read for reporting purposes
// re-reads the pin through the attached HardwareReader first. Each channel has
// its own mutex so unrelated channels never serialize; the sensor snapshot and
// the auxiliary telemetry each sit behind one RWMutex.
package state

import (
	"fmt"
	"sync"
	"time"
)

// HardwareReader reads the actual logical state of a channel from hardware.
type HardwareReader interface {
	ReadActual(ch int) (State, error)
}

type relaySlot struct {
	mu    sync.Mutex
	state State
}

// Store is the single owner of relay and sensor state.
type Store struct {
	channels  []Channel
	slots     []*relaySlot
	startTime time.Time
	now       func() time.Time

	hwMu sync.RWMutex
	hw   HardwareReader

	sensorMu sync.RWMutex
	sensor   SensorSnapshot

	auxMu sync.RWMutex
	aux   Auxiliary

	mqttMu        sync.RWMutex
	mqttConnected bool
}

// NewStore creates a store with every channel OFF and the sensor unavailable.
// Channel IDs must be 1..len(channels) in order.
func NewStore(channels []Channel, aux Auxiliary, startTime time.Time) (*Store, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("no channels configured")
	}
	s := &Store{
		channels:  append([]Channel(nil), channels...),
		slots:     make([]*relaySlot, len(channels)),
		startTime: startTime,
		now:       time.Now,
		sensor:    UnavailableSnapshot(startTime),
		aux:       aux.clone(),
	}
	for i, ch := range channels {
		if ch.ID != i+1 {
			return nil, fmt.Errorf("channel %d has id %d, want %d", i, ch.ID, i+1)
		}
		s.slots[i] = &relaySlot{state: Off}
	}
	return s, nil
}

// AttachHardware sets the reader used to refresh relay state. Until one is
// attached, refreshes return the cached state.
func (s *Store) AttachHardware(hw HardwareReader) {
	s.hwMu.Lock()
	s.hw = hw
	s.hwMu.Unlock()
}

func (s *Store) hardware() HardwareReader {
	s.hwMu.RLock()
	defer s.hwMu.RUnlock()
	return s.hw
}

// Channels returns a copy of the configured channels.
func (s *Store) Channels() []Channel {
	return append([]Channel(nil), s.channels...)
}

// Channel returns the channel with the given 1-based id.
func (s *Store) Channel(ch int) (Channel, error) {
	if ch < 1 || ch > len(s.channels) {
		return Channel{}, fmt.Errorf("%w: %d (valid 1..%d)", ErrInvalidChannel, ch, len(s.channels))
	}
	return s.channels[ch-1], nil
}

// RefreshRelayState re-reads channel ch from hardware and caches the result.
func (s *Store) RefreshRelayState(ch int) (State, error) {
	if _, err := s.Channel(ch); err != nil {
		return "", err
	}
	slot := s.slots[ch-1]
	hw := s.hardware()

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if hw == nil {
		return slot.state, nil
	}
	actual, err := hw.ReadActual(ch)
	if err != nil {
		return "", fmt.Errorf("refresh channel %d: %w", ch, err)
	}
	slot.state = actual
	return actual, nil
}

// RelayState returns the current state of ch, refreshed from hardware.
func (s *Store) RelayState(ch int) (State, error) {
	return s.RefreshRelayState(ch)
}

// AllRelayStates returns every channel's state, each refreshed from hardware.
func (s *Store) AllRelayStates() ([]ChannelState, error) {
	out := make([]ChannelState, len(s.channels))
	for i, ch := range s.channels {
		st, err := s.RefreshRelayState(ch.ID)
		if err != nil {
			return nil, err
		}
		out[i] = ChannelState{Channel: ch, State: st}
	}
	return out, nil
}

// Update runs fn while holding channel ch's lock. fn receives the cached
// state and returns the new state, which is cached only if fn succeeds.
// fn must not call back into the store for the same channel.
func (s *Store) Update(ch int, fn func(cached State) (State, error)) (State, error) {
	if _, err := s.Channel(ch); err != nil {
		return "", err
	}
	slot := s.slots[ch-1]

	slot.mu.Lock()
	defer slot.mu.Unlock()
	next, err := fn(slot.state)
	if err != nil {
		return slot.state, err
	}
	slot.state = next
	return next, nil
}

// SensorSnapshot returns the latest published sensor snapshot.
func (s *Store) SensorSnapshot() SensorSnapshot {
	s.sensorMu.RLock()
	defer s.sensorMu.RUnlock()
	return s.sensor
}

// SetSensor replaces the sensor snapshot as a unit.
func (s *Store) SetSensor(snap SensorSnapshot) {
	s.sensorMu.Lock()
	s.sensor = snap
	s.sensorMu.Unlock()
}

// Auxiliary returns a copy of the auxiliary telemetry.
func (s *Store) Auxiliary() Auxiliary {
	s.auxMu.RLock()
	defer s.auxMu.RUnlock()
	return s.aux.clone()
}

// SetExteriorTemperature replaces the exterior temperature value.
func (s *Store) SetExteriorTemperature(v string) {
	s.auxMu.Lock()
	s.aux.ExteriorTemp = v
	s.auxMu.Unlock()
}

// SetMQTTConnected records the MQTT connection status.
func (s *Store) SetMQTTConnected(connected bool) {
	s.mqttMu.Lock()
	s.mqttConnected = connected
	s.mqttMu.Unlock()
}

// Status returns relays, sensor and auxiliary telemetry, all current as of
// the call. Relay states are refreshed from hardware.
func (s *Store) Status() (Status, error) {
	relays, err := s.AllRelayStates()
	if err != nil {
		return Status{}, err
	}
	s.mqttMu.RLock()
	connected := s.mqttConnected
	s.mqttMu.RUnlock()

	return Status{
		Relays:        relays,
		Sensor:        s.SensorSnapshot(),
		Auxiliary:     s.Auxiliary(),
		StartTime:     s.startTime,
		Now:           s.now(),
		MQTTConnected: connected,
	}, nil
}
