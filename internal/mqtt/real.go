package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/antural/motorhome-central/internal/logic"
	"github.com/antural/motorhome-central/internal/state"
)

// DefaultBufferSize is the number of messages kept while disconnected.
const DefaultBufferSize = 100

const publishTimeout = 5 * time.Second

// brokerClient is the subset of paho.Client used by RealPublisher.
type brokerClient interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Disconnect(quiesce uint)
}

// Options configures a RealPublisher.
type Options struct {
	Broker         string
	ClientID       string
	BufferSize     int           // messages buffered while disconnected; DefaultBufferSize if 0
	ConnectTimeout time.Duration // how long NewRealPublisher waits for the first connection
	Logger         *zap.Logger
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed in order on reconnect.
type RealPublisher struct {
	client brokerClient
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	outbox    *outbox
	toggle    ToggleFunc
	connected bool // at least one successful connection
}

// NewRealPublisher creates a publisher for the given broker. Connection is
// retried in the background; if the broker is not reachable within
// ConnectTimeout the publisher is still returned and buffers messages.
func NewRealPublisher(opts Options) *RealPublisher {
	p := newPublisher(nil, opts)

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	clientID := opts.ClientID
	if clientID == "" {
		clientID = "motorhome-central"
	}
	popts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.logger.Warn("mqtt connection lost", zap.Error(err))
		})

	client := paho.NewClient(popts)
	p.client = client

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		p.logger.Warn("mqtt broker not reachable yet, buffering",
			zap.String("broker", opts.Broker), zap.Duration("waited", timeout))
	} else if err := token.Error(); err != nil {
		p.logger.Warn("mqtt connect failed, retrying in background", zap.Error(err))
	}

	return p
}

func newPublisher(client brokerClient, opts Options) *RealPublisher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &RealPublisher{
		client: client,
		logger: logger,
		now:    time.Now,
		outbox: newOutbox(size, logger),
	}
}

// onConnect replays buffered messages, restores the command subscription and
// announces reconnection after the first connect.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	pending := p.outbox.flush()
	reconnect := p.connected
	p.connected = true
	toggle := p.toggle
	p.mu.Unlock()

	p.logger.Info("mqtt connected", zap.Int("replaying", len(pending)), zap.Bool("reconnect", reconnect))

	if toggle != nil {
		if err := p.subscribe(toggle); err != nil {
			p.logger.Error("mqtt resubscribe failed", zap.Error(err))
		}
	}

	for _, m := range pending {
		if err := p.publishNow(m); err != nil {
			p.logger.Warn("mqtt replay failed", zap.String("topic", m.topic), zap.Error(err))
		}
	}

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
		if err := p.publishNow(message{topic: TopicSystem, payload: payload, qos: 1}); err != nil {
			p.logger.Warn("mqtt reconnected event failed", zap.Error(err))
		}
	}
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Publish sends a relay event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(message{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.send(message{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) send(m message) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		p.outbox.enqueue(m)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.publishNow(m)
}

func (p *RealPublisher) publishNow(m message) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// SubscribeToggle routes toggle commands on TopicToggle to fn. The
// subscription is restored after every reconnect.
func (p *RealPublisher) SubscribeToggle(fn ToggleFunc) error {
	p.mu.Lock()
	p.toggle = fn
	p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		return nil // onConnect subscribes
	}
	return p.subscribe(fn)
}

func (p *RealPublisher) subscribe(fn ToggleFunc) error {
	token := p.client.Subscribe(TopicToggle, 1, toggleHandler(fn, p.logger))
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout", TopicToggle)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicToggle, err)
	}
	return nil
}

// toggleHandler adapts fn to a paho message callback. Bad payloads and
// invalid channels are logged and dropped.
func toggleHandler(fn ToggleFunc, logger *zap.Logger) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		ch, err := ParseToggleCommand(msg.Payload())
		if err != nil {
			logger.Warn("dropping toggle command", zap.ByteString("payload", msg.Payload()), zap.Error(err))
			return
		}
		if err := fn(ch); err != nil {
			if errors.Is(err, state.ErrInvalidChannel) {
				logger.Warn("dropping toggle command", zap.Int("channel", ch), zap.Error(err))
				return
			}
			logger.Error("toggle command failed", zap.Int("channel", ch), zap.Error(err))
			return
		}
		logger.Info("toggle command applied", zap.Int("channel", ch))
	}
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	dropped := p.outbox.size()
	p.mu.Unlock()
	if dropped > 0 {
		p.logger.Warn("mqtt closing with undelivered messages", zap.Int("count", dropped))
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
