// Package kafka publishes readings as JSON records keyed by field.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/segmentio/kafka-go"
)

// Record is the JSON value of every message.
type Record struct {
	Measurement string    `json:"measurement"`
	Field       string    `json:"field"`
	Value       float64   `json:"value"`
	Timestamp   time.Time `json:"ts"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Writer struct {
	w       messageWriter
	brokers []string
	now     func() time.Time
}

func New(brokers []string, topic string) *Writer {
	return &Writer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
			Async:        false,
		},
		brokers: brokers,
		now:     time.Now,
	}
}

func (w *Writer) Write(ctx context.Context, measurement, field string, value float64) error {
	ts := w.now().UTC()
	data, err := json.Marshal(Record{Measurement: measurement, Field: field, Value: value, Timestamp: ts})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	msg := kafka.Message{Key: []byte(field), Value: data, Time: ts}
	if err := w.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", field, err)
	}
	return nil
}

// Ping dials the first reachable broker.
func (w *Writer) Ping(ctx context.Context) error {
	var d net.Dialer
	var lastErr error
	for _, b := range w.brokers {
		conn, err := d.DialContext(ctx, "tcp", b)
		if err == nil {
			return conn.Close()
		}
		lastErr = err
	}
	return fmt.Errorf("kafka unreachable: %w", lastErr)
}

func (w *Writer) Close() error {
	return w.w.Close()
}
