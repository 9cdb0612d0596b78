// Package logic contains pure change-detection logic for relay channels.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the logical state of a relay channel.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// EventType represents a state transition event.
type EventType string

const (
	EventRelayOn  EventType = "RELAY_ON"
	EventRelayOff EventType = "RELAY_OFF"
)

// Event represents a state transition to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Channel   int     // 1-based
	State     State   // new state of Channel
	States    []State // stable state of every channel after the transition
}

// ChannelState tracks debounce state for a single channel.
type ChannelState struct {
	// Current stable (debounced) state
	Stable State
	// Pending state during debounce
	Pending State
	// Time when pending state was first observed
	PendingSince time.Time
	// Whether we have established a baseline
	Baselined bool
}

// Input represents a single sample of logical relay states, index-aligned
// with channel order (index 0 is channel 1).
type Input struct {
	Relays []bool // true = ON
	Time   time.Time
}

// ChannelCounts counts transitions of one channel.
type ChannelCounts struct {
	On  int
	Off int
}

// EventCounts tracks transitions per channel since startup, index-aligned
// with channel order.
type EventCounts []ChannelCounts

// Total returns the number of transitions across all channels.
func (c EventCounts) Total() int {
	n := 0
	for _, cc := range c {
		n += cc.On + cc.Off
	}
	return n
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
