package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nkalkhof/ThermoBeacon/internal/config"
	"github.com/nkalkhof/ThermoBeacon/internal/db"
	"github.com/nkalkhof/ThermoBeacon/internal/db/migrate"
	"github.com/nkalkhof/ThermoBeacon/internal/influx"
	"github.com/nkalkhof/ThermoBeacon/internal/journal"
	"github.com/nkalkhof/ThermoBeacon/internal/kafka"
	"github.com/nkalkhof/ThermoBeacon/internal/mqtt"
	"github.com/nkalkhof/ThermoBeacon/internal/sink"
)

const connectTimeout = 5 * time.Second

// buildSinks opens every named sink. On error the sinks opened so far are closed.
func buildSinks(ctx context.Context, names []string, cfg config.Config, logger *slog.Logger) (sink.Fanout, error) {
	var out sink.Fanout
	for _, name := range names {
		w, err := openSink(ctx, name, cfg, logger)
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("open %s sink: %w", name, err)
		}
		out = append(out, sink.Named{Name: name, Writer: w})
		logger.Info("sink ready", "sink", name)
	}
	return out, nil
}

func openSink(ctx context.Context, name string, cfg config.Config, logger *slog.Logger) (sink.Writer, error) {
	switch name {
	case config.SinkMQTT:
		c := mqtt.NewClient(cfg, logger)
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		err := c.Connect(connectCtx)
		cancel()
		if err != nil {
			// The client keeps retrying in the background; writes fail until it connects.
			logger.Warn("mqtt connection failed (continuing, will retry)", "error", err)
		}
		return c, nil

	case config.SinkInflux:
		return influx.New(influx.Options{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}), nil

	case config.SinkKafka:
		return kafka.New(cfg.KafkaBrokers, cfg.KafkaTopic), nil

	case config.SinkSQLite:
		conn, err := db.Open(db.Options{
			Path:         cfg.SQLitePath,
			MaxOpenConns: cfg.SQLiteMaxOpenConns,
			LogQueries:   cfg.SQLiteLogQueries,
		}, logger)
		if err != nil {
			return nil, err
		}
		if _, err := migrate.Run(ctx, conn, logger); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return journal.New(conn), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}
