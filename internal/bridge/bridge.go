// Package bridge forwards the gateway's MQTT readings to other sinks.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nkalkhof/ThermoBeacon/internal/metrics"
	"github.com/nkalkhof/ThermoBeacon/internal/sink"
)

const writeTimeout = 10 * time.Second

const (
	outcomeForwarded = "forwarded"
	outcomeInvalid   = "invalid"
	outcomeFailed    = "failed"
)

var ErrInvalidPayload = errors.New("invalid payload")

// Topics lists <prefix><location>_temp and _hum for every configured location.
func Topics(prefix string, sensors map[string]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, loc := range sensors {
		for _, suffix := range []string{"_temp", "_hum"} {
			t := prefix + loc + suffix
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	sort.Strings(out)
	return out
}

type Bridge struct {
	prefix      string
	measurement string
	sink        sink.Writer
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func New(prefix, measurement string, w sink.Writer, logger *slog.Logger, m *metrics.Metrics) *Bridge {
	if m == nil {
		m = metrics.New()
	}
	return &Bridge{
		prefix:      prefix,
		measurement: measurement,
		sink:        w,
		logger:      logger,
		metrics:     m,
	}
}

// Handler returns the message callback for the subscriber; writes are bounded
// by writeTimeout and abandoned once ctx is done.
func (b *Bridge) Handler(ctx context.Context) func(topic string, payload []byte) error {
	return func(topic string, payload []byte) error {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		return b.HandleMessage(wctx, topic, payload)
	}
}

// HandleMessage parses payload as a float, rounds it to two decimals and
// writes it under the topic with the prefix removed.
func (b *Bridge) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	field := strings.TrimPrefix(topic, b.prefix)

	value, err := ParseValue(payload)
	if err != nil {
		b.metrics.BridgeMessage(outcomeInvalid)
		return fmt.Errorf("%s: %w", topic, err)
	}

	if err := b.sink.Write(ctx, b.measurement, field, value); err != nil {
		b.metrics.BridgeMessage(outcomeFailed)
		return fmt.Errorf("forward %s: %w", field, err)
	}

	b.metrics.BridgeMessage(outcomeForwarded)
	b.logger.Info("forwarded", "field", field, "value", value)
	return nil
}

func ParseValue(payload []byte) (float64, error) {
	s := strings.TrimSpace(string(payload))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w %q", ErrInvalidPayload, s)
	}
	return math.Round(v*100) / 100, nil
}
