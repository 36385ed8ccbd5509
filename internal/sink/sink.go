// Package sink defines the telemetry writer used by the poll loop and the bridge.
package sink

import (
	"context"
	"errors"
	"fmt"
)

// Writer accepts one numeric field per call. Implementations are best-effort:
// nothing is buffered or retried across calls.
type Writer interface {
	Write(ctx context.Context, measurement, field string, value float64) error
	Close() error
}

// Pinger is implemented by writers that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Named pairs a writer with the name it was configured under.
type Named struct {
	Name   string
	Writer Writer
}

// Fanout writes every field to all of its writers.
type Fanout []Named

func (f Fanout) Write(ctx context.Context, measurement, field string, value float64) error {
	var errs []error
	for _, n := range f {
		if err := n.Writer.Write(ctx, measurement, field, value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, n := range f {
		if err := n.Writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Ping checks every writer that implements Pinger and returns the failures by name.
func (f Fanout) Ping(ctx context.Context) map[string]error {
	out := make(map[string]error)
	for _, n := range f {
		p, ok := n.Writer.(Pinger)
		if !ok {
			continue
		}
		out[n.Name] = p.Ping(ctx)
	}
	return out
}
