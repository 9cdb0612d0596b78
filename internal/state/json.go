package state

import (
	"encoding/json"
	"strconv"
	"time"
)

// ChannelKey returns the JSON key for channel ch ("ch1".."chN").
func ChannelKey(ch int) string {
	return "ch" + strconv.Itoa(ch)
}

// RelayStatesJSON maps "chN" to "ON"/"OFF".
type RelayStatesJSON map[string]string

// SensorsJSON is the sensor query document. Unavailable values are Sentinel.
type SensorsJSON struct {
	TempInt string `json:"tempInt"`
	TempExt string `json:"tempExt"`
	Presion string `json:"presion"`
	Altitud string `json:"altitud"`
	AirQ    string `json:"airQ"`
	MQ2     string `json:"mq2"`
}

// AggregateJSON is the aggregate status document for external applications.
type AggregateJSON struct {
	Relays     []int  `json:"relays"`
	TankVals   []int  `json:"tankVals"`
	BatSOC     string `json:"bat_soc"`
	BatVolt    string `json:"bat_volt"`
	BatCurrent string `json:"bat_current"`
	BatTemp    string `json:"bat_temp"`
	BatCycles  string `json:"bat_cycles"`
	BatStatus  string `json:"bat_status,omitempty"`
	BatBalance string `json:"bat_balance,omitempty"`
	TempInt    string `json:"tempInt"`
	TempExt    string `json:"tempExt"`
	Presion    string `json:"presion"`
	Altitud    string `json:"altitud"`
	AirQ       string `json:"airQ"`
	MQ2        string `json:"mq2"`
}

// NewRelayStatesJSON builds the relay query document.
func NewRelayStatesJSON(relays []ChannelState) RelayStatesJSON {
	out := make(RelayStatesJSON, len(relays))
	for _, r := range relays {
		out[ChannelKey(r.ID)] = string(r.State)
	}
	return out
}

// NewSensorsJSON builds the sensor query document.
func NewSensorsJSON(snap SensorSnapshot, aux Auxiliary) SensorsJSON {
	return SensorsJSON{
		TempInt: snap.Temperature(),
		TempExt: aux.ExteriorTemp,
		Presion: snap.Pressure(),
		Altitud: snap.Altitude(),
		AirQ:    aux.AirQuality,
		MQ2:     aux.Gas,
	}
}

// NewAggregateJSON builds the aggregate status document. Relay flags are
// index-aligned with channel order.
func NewAggregateJSON(st Status) AggregateJSON {
	relays := make([]int, len(st.Relays))
	for i, r := range st.Relays {
		relays[i] = r.State.Flag()
	}
	tanks := make([]int, len(st.Auxiliary.Tanks))
	for i, t := range st.Auxiliary.Tanks {
		tanks[i] = t.Level
	}
	b := st.Auxiliary.Battery
	return AggregateJSON{
		Relays:     relays,
		TankVals:   tanks,
		BatSOC:     b.SOC,
		BatVolt:    b.Voltage,
		BatCurrent: b.Current,
		BatTemp:    b.Temperature,
		BatCycles:  b.Cycles,
		BatStatus:  b.Status,
		BatBalance: b.Balance,
		TempInt:    st.Sensor.Temperature(),
		TempExt:    st.Auxiliary.ExteriorTemp,
		Presion:    st.Sensor.Pressure(),
		Altitud:    st.Sensor.Altitude(),
		AirQ:       st.Auxiliary.AirQuality,
		MQ2:        st.Auxiliary.Gas,
	}
}

// StatusEventJSON is the envelope for status snapshots published over MQTT.
type StatusEventJSON struct {
	Status StatusEventInner `json:"status"`
}

// StatusEventInner contains the status details.
type StatusEventInner struct {
	Event         string          `json:"event,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Relays        RelayStatesJSON `json:"relays"`
	Sensors       SensorsJSON     `json:"sensors"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	Timestamp     string          `json:"timestamp"`
	MQTTConnected bool            `json:"mqtt_connected"`
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(st Status, event, reason string) []byte {
	inner := StatusEventInner{
		Event:         event,
		Reason:        reason,
		Relays:        NewRelayStatesJSON(st.Relays),
		Sensors:       NewSensorsJSON(st.Sensor, st.Auxiliary),
		UptimeSeconds: int64(st.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     st.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     st.Now.UTC().Format(time.RFC3339),
		MQTTConnected: st.MQTTConnected,
	}
	data, _ := json.Marshal(StatusEventJSON{Status: inner})
	return data
}
