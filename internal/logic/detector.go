package logic

import "time"

// Detector tracks relay states and detects debounced transitions, whether
// they come from this process or from outside it.
type Detector struct {
	debounceDuration time.Duration
	channels         []ChannelState
	baselined        bool
	startTime        time.Time
	eventCounts      EventCounts
	lastHeartbeat    time.Time
}

// NewDetector creates a transition detector for n channels.
// The startTime is used for calculating uptime in heartbeat events.
func NewDetector(n int, debounceDuration time.Duration, startTime time.Time) *Detector {
	return &Detector{
		debounceDuration: debounceDuration,
		channels:         make([]ChannelState, n),
		startTime:        startTime,
		eventCounts:      make(EventCounts, n),
		lastHeartbeat:    startTime,
	}
}

// Process takes a new input sample and returns any events that should be emitted.
// Events are only returned after baseline is established and on state transitions.
// Samples with the wrong number of channels are ignored.
func (d *Detector) Process(input Input) []Event {
	if len(input.Relays) != len(d.channels) {
		return nil
	}

	var changed []int
	for i, on := range input.Relays {
		if d.processChannel(&d.channels[i], boolToState(on), input.Time) {
			changed = append(changed, i)
		}
	}

	// Check if we've established baseline
	if !d.baselined {
		for i := range d.channels {
			if !d.channels[i].Baselined {
				return nil // No events until baseline established
			}
		}
		d.baselined = true
		return nil
	}

	if len(changed) == 0 {
		return nil
	}

	states := d.stableStates()
	events := make([]Event, 0, len(changed))
	// Emitted in channel order when several change together.
	for _, i := range changed {
		s := d.channels[i].Stable
		e := Event{
			Timestamp: input.Time,
			Type:      eventTypeFor(s),
			Channel:   i + 1,
			State:     s,
			States:    states,
		}
		events = append(events, e)

		if s == StateOn {
			d.eventCounts[i].On++
		} else {
			d.eventCounts[i].Off++
		}
	}

	return events
}

// processChannel handles debounce logic for a single channel.
// Returns true if a transition occurred.
func (d *Detector) processChannel(ch *ChannelState, newState State, now time.Time) bool {
	// First time seeing this channel
	if !ch.Baselined {
		if ch.Pending == "" || ch.Pending != newState {
			// Start observing, or state changed during baseline: restart
			ch.Pending = newState
			ch.PendingSince = now
			if d.debounceDuration > 0 {
				return false
			}
		}

		if now.Sub(ch.PendingSince) >= d.debounceDuration {
			ch.Stable = newState
			ch.Baselined = true
			ch.Pending = ""
		}
		return false
	}

	// Already baselined - detect transitions
	if newState == ch.Stable {
		// No change from stable state, clear any pending
		ch.Pending = ""
		return false
	}

	// State differs from stable
	if ch.Pending != newState {
		// New pending state
		ch.Pending = newState
		ch.PendingSince = now
	}

	if now.Sub(ch.PendingSince) >= d.debounceDuration {
		ch.Stable = newState
		ch.Pending = ""
		return true
	}

	return false
}

func (d *Detector) stableStates() []State {
	out := make([]State, len(d.channels))
	for i := range d.channels {
		out[i] = d.channels[i].Stable
	}
	return out
}

func boolToState(b bool) State {
	if b {
		return StateOn
	}
	return StateOff
}

func eventTypeFor(s State) EventType {
	if s == StateOn {
		return EventRelayOn
	}
	return EventRelayOff
}

// IsBaselined returns whether the detector has established a baseline.
func (d *Detector) IsBaselined() bool {
	return d.baselined
}

// CurrentState returns the current stable states, index-aligned with channels.
func (d *Detector) CurrentState() []State {
	return d.stableStates()
}

// EventCountsSnapshot returns a copy of the per-channel transition counts.
func (d *Detector) EventCountsSnapshot() EventCounts {
	return append(EventCounts(nil), d.eventCounts...)
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if not yet baselined, if the
// interval has not elapsed, or if interval is <= 0 (disabled).
func (d *Detector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if !d.baselined {
		return nil
	}

	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.EventCountsSnapshot(),
	}
}
