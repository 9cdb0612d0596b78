// Package relay drives the relay output pins and keeps the state store's
// relay cache in step with the hardware.
package relay

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/antural/motorhome-central/internal/gpio"
	"github.com/antural/motorhome-central/internal/state"
)

// DefaultSettle is how long a write takes before read-back is reliable.
const DefaultSettle = 40 * time.Millisecond

// Observer is notified after every successful relay write. It is called with
// the channel lock held, so it must not call back into the store.
type Observer interface {
	RelaySwitched(ch int, s state.State)
}

// Options configures a Controller.
type Options struct {
	// ActiveLow maps logical ON to a LOW pin (the usual relay-board wiring).
	ActiveLow bool
	// Settle is the wait after a write; zero means DefaultSettle.
	Settle   time.Duration
	Logger   *zap.Logger
	Observer Observer
}

// Controller owns the relay pins. It is the only writer of relay state.
type Controller struct {
	drv       gpio.Driver
	store     *state.Store
	activeLow bool
	settle    time.Duration
	sleep     func(time.Duration)
	logger    *zap.Logger
	observer  Observer
}

// New creates a Controller for the channels configured in store and attaches
// itself as the store's hardware reader. It does not touch the pins; call
// Reset before use.
func New(drv gpio.Driver, store *state.Store, opts Options) *Controller {
	settle := opts.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		drv:       drv,
		store:     store,
		activeLow: opts.ActiveLow,
		settle:    settle,
		sleep:     time.Sleep,
		logger:    logger,
		observer:  opts.Observer,
	}
	store.AttachHardware(c)
	return c
}

func (c *Controller) level(s state.State) gpio.Level {
	on := gpio.High
	if c.activeLow {
		on = gpio.Low
	}
	if s == state.On {
		return on
	}
	return on.Invert()
}

func (c *Controller) logical(l gpio.Level) state.State {
	if l == c.level(state.On) {
		return state.On
	}
	return state.Off
}

// Reset configures every relay pin as an output driven OFF.
func (c *Controller) Reset() error {
	for _, ch := range c.store.Channels() {
		_, err := c.store.Update(ch.ID, func(state.State) (state.State, error) {
			if err := c.drv.Setup(ch.Pin, c.level(state.Off)); err != nil {
				return "", fmt.Errorf("setup channel %d pin %d: %w", ch.ID, ch.Pin, err)
			}
			return state.Off, nil
		})
		if err != nil {
			return err
		}
	}
	c.logger.Info("relays reset", zap.Int("channels", len(c.store.Channels())), zap.Bool("active_low", c.activeLow))
	return nil
}

// ReadActual reads channel ch's pin and maps it to a logical state.
// It has no side effects.
func (c *Controller) ReadActual(ch int) (state.State, error) {
	channel, err := c.store.Channel(ch)
	if err != nil {
		return "", err
	}
	lvl, err := c.drv.Read(channel.Pin)
	if err != nil {
		return "", fmt.Errorf("read channel %d: %w", ch, err)
	}
	return c.logical(lvl), nil
}

// Set drives channel ch to desired. It returns once the settle time has
// passed; the channel lock is released before waiting.
func (c *Controller) Set(ch int, desired state.State) error {
	if !desired.Valid() {
		return fmt.Errorf("%w: %q", state.ErrInvalidState, desired)
	}
	channel, err := c.store.Channel(ch)
	if err != nil {
		return err
	}

	_, err = c.store.Update(ch, func(state.State) (state.State, error) {
		if err := c.drv.Write(channel.Pin, c.level(desired)); err != nil {
			return "", fmt.Errorf("write channel %d: %w", ch, err)
		}
		c.switched(channel, desired)
		return desired, nil
	})
	if err != nil {
		return err
	}
	c.sleep(c.settle)
	return nil
}

// Toggle inverts channel ch's actual hardware state and returns the new
// state. Read and write happen under the channel lock, so concurrent toggles
// of the same channel never collapse into one.
func (c *Controller) Toggle(ch int) (state.State, error) {
	channel, err := c.store.Channel(ch)
	if err != nil {
		return "", err
	}

	next, err := c.store.Update(ch, func(state.State) (state.State, error) {
		actual, err := c.ReadActual(ch)
		if err != nil {
			return "", err
		}
		next := actual.Invert()
		if err := c.drv.Write(channel.Pin, c.level(next)); err != nil {
			return "", fmt.Errorf("write channel %d: %w", ch, err)
		}
		c.switched(channel, next)
		return next, nil
	})
	if err != nil {
		return "", err
	}
	c.sleep(c.settle)
	return next, nil
}

func (c *Controller) switched(channel state.Channel, s state.State) {
	c.logger.Debug("relay switched",
		zap.Int("channel", channel.ID),
		zap.String("label", channel.Label),
		zap.String("state", string(s)),
	)
	if c.observer != nil {
		c.observer.RelaySwitched(channel.ID, s)
	}
}
