package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/antural/motorhome-central/internal/config"
	"github.com/antural/motorhome-central/internal/discovery"
	"github.com/antural/motorhome-central/internal/gpio"
	"github.com/antural/motorhome-central/internal/metrics"
	"github.com/antural/motorhome-central/internal/mqtt"
	"github.com/antural/motorhome-central/internal/relay"
	"github.com/antural/motorhome-central/internal/sensor"
	"github.com/antural/motorhome-central/internal/state"
	"github.com/antural/motorhome-central/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the controller",
	Long: `Drive all relays OFF, start sampling the sensor and serve the HTTP API,
dashboard and MQTT surface until SIGINT or SIGTERM.`,
	Example: `  motorhome-central serve
  motorhome-central serve --config /etc/motorhome-central.yaml
  motorhome-central serve --gpio-driver fake --sensor-driver fake --http :8080`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("http", "", "HTTP listen address (empty in config disables)")
	f.String("broker", "", "MQTT broker URL, e.g. tcp://192.168.4.1:1883")
	f.String("gpio-driver", "", "GPIO driver: gpiocdev, rpio or fake")
	f.String("sensor-driver", "", "Sensor driver: bmp280, fake or none")
	f.Duration("poll", 0, "Relay polling interval")
	f.Duration("heartbeat", 0, "MQTT heartbeat interval (0 keeps config)")
	f.Bool("no-mdns", false, "Disable mDNS advertisement")
}

// applyServeFlags overrides cfg with the flags that were set on the command line.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("http") {
		cfg.HTTP.Addr, _ = f.GetString("http")
	}
	if f.Changed("broker") {
		cfg.MQTT.Broker, _ = f.GetString("broker")
	}
	if f.Changed("gpio-driver") {
		cfg.GPIO.Driver, _ = f.GetString("gpio-driver")
	}
	if f.Changed("sensor-driver") {
		cfg.Sensor.Driver, _ = f.GetString("sensor-driver")
	}
	if f.Changed("poll") {
		cfg.Poll, _ = f.GetDuration("poll")
	}
	if f.Changed("heartbeat") {
		cfg.MQTT.Heartbeat, _ = f.GetDuration("heartbeat")
	}
	if v, _ := f.GetBool("no-mdns"); v {
		cfg.MDNS.Enabled = false
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	return serve(cfg, logger)
}

// brokerConn is what serve needs from an MQTT connection.
type brokerConn interface {
	mqtt.Publisher
	mqtt.ConnectionStatus
	SubscribeToggle(fn mqtt.ToggleFunc) error
}

func serve(cfg config.Config, logger *zap.Logger) error {
	startTime := time.Now()
	channels := cfg.Channels()

	store, err := state.NewStore(channels, cfg.AuxiliaryTelemetry(), startTime)
	if err != nil {
		return fmt.Errorf("init state: %w", err)
	}
	collector := metrics.New(channels)

	drv, err := gpio.Open(cfg.GPIO.Driver, cfg.GPIO.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer drv.Close()

	ctrl := relay.New(drv, store, relay.Options{
		ActiveLow: cfg.GPIO.ActiveLow,
		Settle:    cfg.GPIO.Settle,
		Logger:    logger.Named("relay"),
		Observer:  collector,
	})
	if err := ctrl.Reset(); err != nil {
		return fmt.Errorf("reset relays: %w", err)
	}

	sens := openSensor(cfg.Sensor, logger)
	if sens != nil {
		defer sens.Close()
	}
	var exterior sensor.Thermometer
	if cfg.Sensor.ExteriorDS18B20 != "" {
		exterior = sensor.DS18B20{ID: cfg.Sensor.ExteriorDS18B20}
	}
	sampler := sensor.NewSampler(sens, store, sensor.SamplerConfig{
		Interval:    cfg.Sensor.Interval,
		ReadTimeout: cfg.Sensor.ReadTimeout,
		Exterior:    exterior,
		Logger:      logger.Named("sensor"),
		Observer:    collector,
	})

	pub := openPublisher(cfg.MQTT, logger)
	defer pub.Close()
	err = pub.SubscribeToggle(func(ch int) error {
		_, err := ctrl.Toggle(ch)
		return err
	})
	if err != nil {
		logger.Warn("mqtt toggle subscription failed", zap.Error(err))
	}

	store.SetMQTTConnected(pub.IsConnected())
	if err := pub.PublishSystem(statusEvent(store, "STARTUP", "", time.Now(), logger)); err != nil {
		logger.Warn("failed to publish startup event", zap.Error(err))
	} else {
		logger.Info("published startup event")
	}

	if cfg.HTTP.Addr != "" {
		opts := web.Options{
			Addr:        cfg.HTTP.Addr,
			CORSOrigins: cfg.HTTP.CORSOrigins,
			Logger:      logger.Named("http"),
		}
		if cfg.HTTP.Metrics {
			opts.Metrics = collector.Handler()
		}
		srv := web.New(opts, store, ctrl)
		ln, err := net.Listen("tcp", cfg.HTTP.Addr)
		if err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", zap.Error(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))

		if cfg.MDNS.Enabled {
			adv := discovery.NewAdvertiser(logger.Named("mdns"))
			if err := adv.Advertise(cfg.MDNS.Instance, cfg.HTTP.Addr, []string{"path=/", "version=" + version}); err != nil {
				logger.Warn("mdns advertisement failed", zap.Error(err))
			} else {
				defer adv.Shutdown()
			}
		}
	}

	logger.Info("started",
		zap.Int("relays", len(channels)),
		zap.Duration("poll", cfg.Poll),
		zap.Duration("sample_interval", cfg.Sensor.Interval),
		zap.String("broker", cfg.MQTT.Broker),
		zap.Duration("heartbeat", cfg.MQTT.Heartbeat),
	)

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(context.Background(), loopDeps{
		store:      store,
		sampler:    sampler,
		publisher:  pub,
		mqttStatus: pub,
		metrics:    collector,
		logger:     logger,
		debounce:   cfg.Debounce,
		heartbeat:  cfg.MQTT.Heartbeat,
		now:        time.Now,
	}, ticker.C, sigCh)
}

// openSensor returns the configured sensor, or nil when it is disabled or
// could not be initialized.
func openSensor(cfg config.SensorConfig, logger *zap.Logger) sensor.Sensor {
	switch cfg.Driver {
	case config.SensorBMP280:
		s, err := sensor.OpenBMP280(cfg.Bus, cfg.Address, cfg.SeaLevelHPa)
		if err != nil {
			logger.Warn("bmp280 init failed", zap.Error(err))
			return nil
		}
		return s
	case config.SensorFake:
		return sensor.NewFakeSensor(sensor.Reading{
			TemperatureC: 22.5,
			PressureHPa:  cfg.SeaLevelHPa,
			AltitudeM:    0,
		})
	default:
		return nil
	}
}

func openPublisher(cfg config.MQTTConfig, logger *zap.Logger) brokerConn {
	if cfg.Broker == "" {
		logger.Info("mqtt disabled, no broker configured")
		return mqtt.NopPublisher{}
	}
	return mqtt.NewRealPublisher(mqtt.Options{
		Broker:     cfg.Broker,
		ClientID:   cfg.ClientID,
		BufferSize: cfg.BufferSize,
		Logger:     logger.Named("mqtt"),
	})
}
