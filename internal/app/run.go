package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nkalkhof/ThermoBeacon/internal/ble"
	"github.com/nkalkhof/ThermoBeacon/internal/bridge"
	"github.com/nkalkhof/ThermoBeacon/internal/config"
	"github.com/nkalkhof/ThermoBeacon/internal/httpapi"
	"github.com/nkalkhof/ThermoBeacon/internal/metrics"
	"github.com/nkalkhof/ThermoBeacon/internal/mqtt"
	"github.com/nkalkhof/ThermoBeacon/internal/poll"
)

// Run starts the gateway: radio, poll loop, sinks and the optional status API.
// It returns ctx.Err() after an orderly shutdown.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("initializing gateway",
		"adapter", cfg.BLEAdapter,
		"sensors", len(cfg.Sensors),
		"discovery_time", cfg.DiscoveryTime,
		"sample_interval", cfg.SampleInterval,
		"measurement", cfg.Measurement,
		"sinks", cfg.Sinks,
		"mqtt_broker", cfg.MQTTBroker,
		"mqtt_port", cfg.MQTTPort,
	)

	sinks, err := buildSinks(ctx, cfg.Sinks, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Warn("sink close", "error", err)
		}
	}()

	m := metrics.New()
	radio := ble.NewListener(ble.Options{Adapter: cfg.BLEAdapter}, logger)
	loop := poll.NewLoop(radio, sinks, poll.Options{
		Sensors:        cfg.Sensors,
		DiscoveryTime:  cfg.DiscoveryTime,
		SampleInterval: cfg.SampleInterval,
		Measurement:    cfg.Measurement,
	}, logger, m)

	stopHTTP := serveStatus(cfg.HTTPAddr, httpapi.Deps{
		Readings: loop,
		Sinks:    sinks,
		Metrics:  m.Handler(),
		Logger:   logger,
	})
	defer stopHTTP()

	err = loop.Run(ctx)
	logger.Info("gateway shutting down")
	return err
}

// RunBridge subscribes to the gateway's topics and forwards every value to
// the bridge sinks until ctx is cancelled.
func RunBridge(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := cfg.ValidateBridge(); err != nil {
		return err
	}
	logger.Info("initializing bridge",
		"sinks", cfg.BridgeSinks,
		"mqtt_broker", cfg.MQTTBroker,
		"mqtt_port", cfg.MQTTPort,
		"topic_prefix", cfg.MQTTTopicPrefix,
	)

	sinks, err := buildSinks(ctx, cfg.BridgeSinks, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Warn("sink close", "error", err)
		}
	}()

	m := metrics.New()
	b := bridge.New(cfg.MQTTTopicPrefix, cfg.Measurement, sinks, logger, m)
	sub := mqtt.NewSubscriber(cfg, bridge.Topics(cfg.MQTTTopicPrefix, cfg.Sensors), b.Handler(ctx), logger)
	defer sub.Close()

	stopHTTP := serveStatus(cfg.HTTPAddr, httpapi.Deps{
		Sinks:   sinks,
		Metrics: m.Handler(),
		Logger:  logger,
	})
	defer stopHTTP()

	if err := sub.Connect(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("bridge shutting down")
	return ctx.Err()
}

// serveStatus starts the status API when addr is set and returns its shutdown func.
func serveStatus(addr string, deps httpapi.Deps) func() {
	if addr == "" {
		return func() {}
	}
	logger := deps.Logger
	srv := httpapi.NewServer(addr, httpapi.NewMux(deps), logger)

	go func() {
		logger.Info("http listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("http shutting down")
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
	}
}
