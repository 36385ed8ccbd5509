// Package influx writes readings to InfluxDB 2.x, one point per field.
package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/domain"
)

type Options struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

type Writer struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	now    func() time.Time
}

func New(opts Options) *Writer {
	client := influxdb2.NewClientWithOptions(opts.URL, opts.Token,
		influxdb2.DefaultOptions().SetHTTPRequestTimeout(10))
	return &Writer{
		client: client,
		write:  client.WriteAPIBlocking(opts.Org, opts.Bucket),
		now:    time.Now,
	}
}

func (w *Writer) Write(ctx context.Context, measurement, field string, value float64) error {
	p := influxdb2.NewPoint(measurement, nil, map[string]any{field: value}, w.now())
	if err := w.write.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write %s: %w", field, err)
	}
	return nil
}

func (w *Writer) Ping(ctx context.Context) error {
	h, err := w.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influx health: %w", err)
	}
	if h.Status != domain.HealthCheckStatusPass {
		msg := ""
		if h.Message != nil {
			msg = *h.Message
		}
		return fmt.Errorf("influx health: status %s %s", h.Status, msg)
	}
	return nil
}

func (w *Writer) Close() error {
	w.client.Close()
	return nil
}
