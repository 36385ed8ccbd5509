package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nkalkhof/ThermoBeacon/internal/ble"
	"github.com/nkalkhof/ThermoBeacon/internal/metrics"
	"github.com/nkalkhof/ThermoBeacon/internal/sink"
)

const (
	temperatureSuffix = "_temp"
	humiditySuffix    = "_hum"
)

// SinkWriteError is a failed field write for one sensor.
type SinkWriteError struct {
	Address string
	Field   string
	Err     error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("write %s for %s: %v", e.Field, e.Address, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

type Options struct {
	Sensors        map[string]string
	DiscoveryTime  time.Duration
	SampleInterval time.Duration
	Measurement    string
}

// Cycle describes one completed scan cycle.
type Cycle struct {
	StartedAt time.Time
	Readings  []ble.Reading
	Published bool
	Failed    []string
}

// Loop drives the scan / idle cadence and owns the publish baseline.
type Loop struct {
	radio   ble.Radio
	sink    sink.Writer
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	session atomic.Pointer[ble.Session]

	mu       sync.RWMutex
	baseline Baseline
}

func NewLoop(radio ble.Radio, w sink.Writer, opts Options, logger *slog.Logger, m *metrics.Metrics) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	l := &Loop{
		radio:    radio,
		sink:     w,
		opts:     opts,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
		baseline: Baseline{},
	}
	radio.SetHandler(l.handleAdvertisement)
	return l
}

func (l *Loop) handleAdvertisement(adv ble.Advertisement) {
	if s := l.session.Load(); s != nil {
		s.OnAdvertisement(adv)
	}
}

// Run enables the radio, performs the warm-up discovery and then cycles until
// ctx is cancelled. It always returns a non-nil error; ctx.Err() on shutdown.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.bootstrap(ctx); err != nil {
		return err
	}
	defer l.release()

	for {
		started := l.now()
		if _, err := l.RunCycle(ctx); err != nil {
			return err
		}

		idle := IdleDuration(l.opts.SampleInterval, l.now().Sub(started))
		if idle > 0 {
			l.logger.Debug("sleeping", "duration", idle.Round(100*time.Millisecond))
		}
		if err := sleep(ctx, idle); err != nil {
			return err
		}
	}
}

func (l *Loop) bootstrap(ctx context.Context) error {
	if err := l.radio.Enable(); err != nil {
		return fmt.Errorf("enable radio: %w", err)
	}

	l.logger.Info("starting discovery", "window", l.opts.DiscoveryTime, "sensors", len(l.opts.Sensors))
	found, err := l.scan(ctx)
	if err != nil {
		l.release()
		return err
	}
	for _, r := range found {
		l.logger.Info("sensor discovered", "addr", r.Address, "location", r.Location)
	}
	if len(found) < len(l.opts.Sensors) {
		l.logger.Warn("not all sensors discovered", "found", len(found), "configured", len(l.opts.Sensors))
	}
	return nil
}

// RunCycle performs one scan window and the publish decision that follows it.
// Only cancellation of ctx is returned as an error.
func (l *Loop) RunCycle(ctx context.Context) (Cycle, error) {
	c := Cycle{StartedAt: l.now()}
	l.logger.Info("starting scan", "at", c.StartedAt.UTC().Format(time.DateTime))

	readings, err := l.scan(ctx)
	if err != nil {
		return c, err
	}
	c.Readings = readings
	l.logger.Info("scan completed", "readings", len(readings))
	for _, r := range readings {
		l.logger.Info("reading",
			"location", r.Location,
			"addr", r.Address,
			"temperature_c", r.Temperature,
			"humidity_pct", r.Humidity,
			"battery", r.Battery,
		)
	}

	baseline := l.currentBaseline()
	switch {
	case len(readings) == 0:
		l.logger.Info("no readings in window, nothing to publish")
	case !ShouldPublish(readings, baseline):
		l.logger.Info("no changes in samples compared to previous, omitting publish")
	default:
		// Publishing is not interrupted by shutdown; cancellation is honoured
		// once the cycle is complete.
		failed := l.publish(context.WithoutCancel(ctx), readings)
		l.setBaseline(Advance(readings, failed))
		c.Published = true
		for addr := range failed {
			c.Failed = append(c.Failed, addr)
		}
		sort.Strings(c.Failed)
	}

	l.metrics.ObserveCycle(len(readings), c.Published, l.now().Sub(c.StartedAt).Seconds())
	return c, nil
}

// scan runs one discovery window and returns its readings.
func (l *Loop) scan(ctx context.Context) ([]ble.Reading, error) {
	s := ble.NewSession(l.opts.Sensors, l.logger)
	l.session.Store(s)
	defer l.session.Store(nil)

	if err := l.radio.StartDiscovery(); err != nil {
		l.logger.Error("start discovery failed", "error", err)
		return s.Close(), nil
	}

	timer := time.NewTimer(l.opts.DiscoveryTime)
	defer timer.Stop()

	var waitErr error
	select {
	case <-ctx.Done():
		waitErr = ctx.Err()
	case <-timer.C:
	}

	if err := l.radio.StopDiscovery(); err != nil && waitErr == nil {
		l.logger.Warn("discovery ended with error", "error", err)
	}
	readings := s.Close()
	if waitErr != nil {
		return nil, waitErr
	}
	return readings, nil
}

func (l *Loop) publish(ctx context.Context, readings []ble.Reading) map[string]bool {
	l.logger.Info("publishing readings", "count", len(readings))
	failed := make(map[string]bool)
	for _, r := range readings {
		fields := []struct {
			key   string
			value float64
		}{
			{key: r.Location + temperatureSuffix, value: r.Temperature},
			{key: r.Location + humiditySuffix, value: r.Humidity},
		}
		for _, f := range fields {
			if err := l.sink.Write(ctx, l.opts.Measurement, f.key, f.value); err != nil {
				werr := &SinkWriteError{Address: r.Address, Field: f.key, Err: err}
				l.logger.Error("sink write failed", "location", r.Location, "error", werr)
				l.metrics.SinkWriteError(r.Location)
				failed[r.Address] = true
			}
		}
	}
	return failed
}

func (l *Loop) release() {
	// Errors here only mean the radio was already stopped.
	_ = l.radio.StopDiscovery()
	l.logger.Info("radio released")
}

func (l *Loop) currentBaseline() Baseline {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.baseline
}

func (l *Loop) setBaseline(b Baseline) {
	l.mu.Lock()
	l.baseline = b
	l.mu.Unlock()
}

// Snapshot returns the published baseline ordered by location.
func (l *Loop) Snapshot() []ble.Reading {
	l.mu.RLock()
	out := make([]ble.Reading, 0, len(l.baseline))
	for _, r := range l.baseline {
		out = append(out, r)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out
}

// IdleDuration is the wait before the next cycle; it never goes negative.
func IdleDuration(interval, elapsed time.Duration) time.Duration {
	if d := interval - elapsed; d > 0 {
		return d
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
