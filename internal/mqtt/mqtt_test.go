package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/antural/motorhome-central/internal/logic"
	"github.com/antural/motorhome-central/internal/state"
)

func fixedID(t *testing.T) {
	t.Helper()
	orig := newID
	newID = func() string { return "test-id" }
	t.Cleanup(func() { newID = orig })
}

func relayEvent() logic.Event {
	return logic.Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Type:      logic.EventRelayOn,
		Channel:   3,
		State:     logic.StateOn,
		States:    []logic.State{logic.StateOff, logic.StateOff, logic.StateOn},
	}
}

func TestFormatPayloadExactJSON(t *testing.T) {
	fixedID(t)

	payload, err := FormatPayload(relayEvent())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"relay":{"id":"test-id","timestamp":"2026-02-02T22:18:12Z","event":"RELAY_ON","channel":3,"state":"ON","relays":{"ch1":"OFF","ch2":"OFF","ch3":"ON"}}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatPayloadUniqueIDs(t *testing.T) {
	a, _ := FormatPayload(relayEvent())
	b, _ := FormatPayload(relayEvent())

	var pa, pb Payload
	if err := json.Unmarshal(a, &pa); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if err := json.Unmarshal(b, &pb); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if pa.Relay.ID == "" || pa.Relay.ID == pb.Relay.ID {
		t.Errorf("expected distinct non-empty ids, got %q and %q", pa.Relay.ID, pb.Relay.ID)
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	fixedID(t)
	loc := time.FixedZone("ART", -3*60*60)
	e := relayEvent()
	e.Timestamp = time.Date(2026, 2, 2, 19, 18, 12, 0, loc)

	payload, err := FormatPayload(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Relay.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.Relay.Timestamp)
	}
}

func TestTopics(t *testing.T) {
	if Topic != "motorhome/central/relays/events" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "motorhome/central/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
	if TopicToggle != "motorhome/central/relays/toggle" {
		t.Errorf("unexpected toggle topic: %s", TopicToggle)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadReconnectedOmitsReason(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadRawPayload(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload passthrough, got %s", payload)
	}
}

func TestParseToggleCommand(t *testing.T) {
	tests := []struct {
		payload string
		want    int
		wantErr bool
	}{
		{"3", 3, false},
		{" 6\n", 6, false},
		{`{"ch":2}`, 2, false},
		{`{"ch":0}`, 0, false},
		{"-1", -1, false},
		{"", 0, true},
		{"abc", 0, true},
		{`{"channel":2}`, 0, true},
		{`{"ch":"2"}`, 0, true},
		{`{bad`, 0, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.payload), func(t *testing.T) {
			got, err := ParseToggleCommand([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrBadCommand) {
					t.Errorf("expected ErrBadCommand, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.Publish(relayEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Events) != 1 || len(f.Payloads) != 1 {
		t.Fatalf("expected 1 event and payload, got %d/%d", len(f.Events), len(f.Payloads))
	}
	if f.Events[0].Channel != 3 {
		t.Errorf("unexpected channel %d", f.Events[0].Channel)
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")

	if err := f.Publish(relayEvent()); err == nil {
		t.Error("expected error")
	}
	if len(f.Events) != 0 {
		t.Error("failed publish should not be recorded")
	}
}

func TestFakePublisherRecordsRetainedFlag(t *testing.T) {
	f := NewFakePublisher()
	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "STARTUP", Retained: true})
	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "HEARTBEAT"})

	if len(f.SystemEvents) != 2 {
		t.Fatalf("expected 2 system events, got %d", len(f.SystemEvents))
	}
	if !f.SystemEvents[0].Retained || f.SystemEvents[1].Retained {
		t.Error("retained flags not preserved")
	}
}

func TestFakePublisherDeliver(t *testing.T) {
	f := NewFakePublisher()
	var got []int
	f.SubscribeToggle(func(ch int) error {
		got = append(got, ch)
		return nil
	})

	if err := f.Deliver([]byte("4")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Deliver([]byte("x")); !errors.Is(err, ErrBadCommand) {
		t.Errorf("expected ErrBadCommand, got %v", err)
	}
	if len(got) != 1 || got[0] != 4 {
		t.Errorf("expected [4], got %v", got)
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(relayEvent())
	f.PublishSystem(SystemEvent{Event: "STARTUP"})
	f.Close()
	f.Connected = true

	f.Reset()
	if f.Events != nil || f.SystemEvents != nil || f.Closed || f.Connected {
		t.Error("Reset did not clear state")
	}
}

// fakeToken is a completed paho token.
type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient records publishes and subscriptions.
type fakeClient struct {
	mu         sync.Mutex
	open       bool
	published  []published
	subscribed []string
	handler    paho.MessageHandler
	pubErr     error
	closed     bool
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) setOpen(v bool) {
	c.mu.Lock()
	c.open = v
	c.mu.Unlock()
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pubErr != nil {
		return &fakeToken{err: c.pubErr}
	}
	c.published = append(c.published, published{topic, qos, retained, payload.([]byte)})
	return &fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	c.handler = callback
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

type fakeMessage struct{ payload []byte }

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return TopicToggle }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestRealPublisherPublishesWhenConnected(t *testing.T) {
	fixedID(t)
	c := &fakeClient{open: true}
	p := newPublisher(c, Options{})

	if err := p.Publish(relayEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{Event: "STARTUP", RawPayload: []byte("{}"), Retained: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(c.published) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(c.published))
	}
	if c.published[0].topic != Topic || c.published[0].qos != 0 || c.published[0].retained {
		t.Errorf("unexpected relay publish %+v", c.published[0])
	}
	if c.published[1].topic != TopicSystem || c.published[1].qos != 1 || !c.published[1].retained {
		t.Errorf("unexpected system publish %+v", c.published[1])
	}
}

func TestRealPublisherPublishError(t *testing.T) {
	c := &fakeClient{open: true, pubErr: errors.New("not authorized")}
	p := newPublisher(c, Options{})

	if err := p.Publish(relayEvent()); err == nil {
		t.Error("expected publish error")
	}
}

func TestRealPublisherBuffersWhileDisconnected(t *testing.T) {
	c := &fakeClient{}
	p := newPublisher(c, Options{BufferSize: 10})

	for i := 0; i < 3; i++ {
		if err := p.Publish(relayEvent()); err != nil {
			t.Fatalf("buffered publish should not fail: %v", err)
		}
	}
	if len(c.published) != 0 {
		t.Fatalf("expected nothing published while disconnected, got %d", len(c.published))
	}

	c.setOpen(true)
	p.onConnect()

	if len(c.published) != 3 {
		t.Fatalf("expected 3 replayed messages, got %d", len(c.published))
	}
	for _, m := range c.published {
		if m.topic != Topic {
			t.Errorf("unexpected topic %s", m.topic)
		}
	}
}

func TestRealPublisherReconnectedEvent(t *testing.T) {
	c := &fakeClient{open: true}
	p := newPublisher(c, Options{})
	p.now = func() time.Time { return time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC) }

	p.onConnect() // first connect
	if len(c.published) != 0 {
		t.Fatalf("first connect should not announce, got %d", len(c.published))
	}

	p.onConnect()
	if len(c.published) != 1 {
		t.Fatalf("expected RECONNECTED publish, got %d", len(c.published))
	}
	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(c.published[0].payload) != expected {
		t.Errorf("unexpected payload %s", c.published[0].payload)
	}
}

func TestRealPublisherSubscribeToggleDeferredUntilConnect(t *testing.T) {
	c := &fakeClient{}
	p := newPublisher(c, Options{})

	if err := p.SubscribeToggle(func(int) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.subscribed) != 0 {
		t.Fatal("should not subscribe while disconnected")
	}

	c.setOpen(true)
	p.onConnect()
	p.onConnect()
	if len(c.subscribed) != 2 || c.subscribed[0] != TopicToggle {
		t.Errorf("expected resubscribe on every connect, got %v", c.subscribed)
	}
}

func TestRealPublisherToggleCommand(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := &fakeClient{open: true}
	p := newPublisher(c, Options{Logger: zap.New(core)})

	var got []int
	err := p.SubscribeToggle(func(ch int) error {
		if ch < 1 || ch > 6 {
			return fmt.Errorf("toggle ch%d: %w", ch, state.ErrInvalidChannel)
		}
		got = append(got, ch)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.handler(nil, fakeMessage{payload: []byte(`{"ch":2}`)})
	c.handler(nil, fakeMessage{payload: []byte("9")})
	c.handler(nil, fakeMessage{payload: []byte("nope")})

	if len(got) != 1 || got[0] != 2 {
		t.Errorf("expected [2], got %v", got)
	}
	if n := logs.FilterMessage("dropping toggle command").Len(); n != 2 {
		t.Errorf("expected 2 dropped commands logged, got %d", n)
	}
	if n := logs.FilterMessage("toggle command applied").Len(); n != 1 {
		t.Errorf("expected 1 applied command logged, got %d", n)
	}
}

func TestRealPublisherClose(t *testing.T) {
	c := &fakeClient{}
	p := newPublisher(c, Options{})
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.closed {
		t.Error("expected Disconnect to be called")
	}
}
