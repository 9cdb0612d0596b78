package main

import (
	"context"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/antural/motorhome-central/internal/logic"
	"github.com/antural/motorhome-central/internal/metrics"
	"github.com/antural/motorhome-central/internal/mqtt"
	"github.com/antural/motorhome-central/internal/sensor"
	"github.com/antural/motorhome-central/internal/state"
)

type loopDeps struct {
	store      *state.Store
	sampler    *sensor.Sampler // optional
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus // optional
	metrics    *metrics.Collector    // optional
	logger     *zap.Logger
	debounce   time.Duration
	heartbeat  time.Duration
	now        func() time.Time
}

// runLoop is the cooperative main loop. Every tick it gives the sampler a
// chance to sample, polls relay state for change events and checks the
// heartbeat. It returns after publishing SHUTDOWN on a signal.
func runLoop(ctx context.Context, d loopDeps, tick <-chan time.Time, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	channels := d.store.Channels()
	detector := logic.NewDetector(len(channels), d.debounce, d.now())

	for {
		select {
		case s := <-sig:
			name := signalName(s)
			d.logger.Info("shutting down", zap.String("signal", name))
			d.syncConnection()
			event := statusEvent(d.store, "SHUTDOWN", name, d.now(), d.logger)
			if err := d.publisher.PublishSystem(event); err != nil {
				d.logger.Warn("failed to publish shutdown event", zap.Error(err))
			} else {
				d.logger.Info("published shutdown event")
			}
			return nil

		case <-tick:
			t := d.now()
			if d.sampler != nil {
				d.sampler.Tick(ctx, t)
			}

			relays, err := d.store.AllRelayStates()
			if err != nil {
				d.logger.Warn("relay read error", zap.Error(err))
				continue
			}

			events := detector.Process(logic.Input{Relays: onFlags(relays), Time: t})
			for _, event := range events {
				d.logger.Info("relay changed",
					zap.String("event", string(event.Type)),
					zap.Int("channel", event.Channel),
					zap.String("label", channels[event.Channel-1].Label),
				)
				if err := d.publisher.Publish(event); err != nil {
					// Don't crash on publish failure
					d.logger.Warn("publish error", zap.Error(err))
				}
			}

			d.syncConnection()

			if !detector.IsBaselined() {
				continue
			}

			if hb := detector.CheckHeartbeat(t, d.heartbeat); hb != nil {
				d.logger.Info("heartbeat",
					zap.Duration("uptime", hb.Uptime),
					zap.Int("transitions", hb.Counts.Total()),
				)
				event := statusEvent(d.store, "HEARTBEAT", "", hb.Timestamp, d.logger)
				event.Retained = false
				if err := d.publisher.PublishSystem(event); err != nil {
					d.logger.Warn("heartbeat publish error", zap.Error(err))
				}
			}
		}
	}
}

// syncConnection copies the MQTT connection state into the store and metrics.
func (d loopDeps) syncConnection() {
	if d.mqttStatus == nil {
		return
	}
	connected := d.mqttStatus.IsConnected()
	d.store.SetMQTTConnected(connected)
	if d.metrics != nil {
		d.metrics.SetMQTTConnected(connected)
	}
}

// statusEvent builds a retained system event carrying the full status. If
// the hardware cannot be read, the event carries no snapshot.
func statusEvent(store *state.Store, name, reason string, at time.Time, logger *zap.Logger) mqtt.SystemEvent {
	event := mqtt.SystemEvent{
		Timestamp: at,
		Event:     name,
		Reason:    reason,
		Retained:  true,
	}
	st, err := store.Status()
	if err != nil {
		logger.Warn("status snapshot unavailable", zap.String("event", name), zap.Error(err))
		return event
	}
	event.RawPayload = state.FormatStatusEvent(st, name, reason)
	return event
}

func onFlags(relays []state.ChannelState) []bool {
	out := make([]bool, len(relays))
	for i, r := range relays {
		out[i] = r.State == state.On
	}
	return out
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
