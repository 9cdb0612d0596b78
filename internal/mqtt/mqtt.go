// Package mqtt publishes relay events and status snapshots to MQTT and
// accepts relay toggle commands, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/antural/motorhome-central/internal/logic"
	"github.com/antural/motorhome-central/internal/state"
)

// Topic is the MQTT topic for relay change events.
const Topic = "motorhome/central/relays/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "motorhome/central/system"

// TopicToggle is the MQTT topic clients publish toggle commands to.
const TopicToggle = "motorhome/central/relays/toggle"

// ErrBadCommand is returned for a toggle command that cannot be parsed.
var ErrBadCommand = errors.New("mqtt: malformed toggle command")

// newID generates event identifiers. Tests replace it.
var newID = uuid.NewString

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a relay event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// ToggleFunc handles a toggle command for a 1-based channel.
type ToggleFunc func(ch int) error

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Relay RelayPayload `json:"relay"`
}

// RelayPayload contains the relay event details.
type RelayPayload struct {
	ID        string                `json:"id"`
	Timestamp string                `json:"timestamp"`
	Event     string                `json:"event"`
	Channel   int                   `json:"channel"`
	State     string                `json:"state"`
	Relays    state.RelayStatesJSON `json:"relays"`
}

// FormatPayload creates the JSON payload for a relay event.
func FormatPayload(event logic.Event) ([]byte, error) {
	relays := make(state.RelayStatesJSON, len(event.States))
	for i, s := range event.States {
		relays[state.ChannelKey(i+1)] = string(s)
	}
	payload := Payload{
		Relay: RelayPayload{
			ID:        newID(),
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Channel:   event.Channel,
			State:     string(event.State),
			Relays:    relays,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

type toggleCommand struct {
	Ch *int `json:"ch"`
}

// ParseToggleCommand extracts the channel from a toggle command payload.
// Both a bare number ("3") and a JSON object ({"ch":3}) are accepted.
// Channel range is not checked here.
func ParseToggleCommand(payload []byte) (int, error) {
	s := strings.TrimSpace(string(payload))
	if s == "" {
		return 0, ErrBadCommand
	}
	if strings.HasPrefix(s, "{") {
		var cmd toggleCommand
		if err := json.Unmarshal([]byte(s), &cmd); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrBadCommand, err)
		}
		if cmd.Ch == nil {
			return 0, fmt.Errorf("%w: missing ch", ErrBadCommand)
		}
		return *cmd.Ch, nil
	}
	ch, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadCommand, s)
	}
	return ch, nil
}
