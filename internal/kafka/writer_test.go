package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestWriter_Write(t *testing.T) {
	fw := &fakeWriter{}
	ts := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)
	w := &Writer{w: fw, now: func() time.Time { return ts }}

	require.NoError(t, w.Write(context.Background(), "temperature", "bedroom_temp", 22))

	require.Len(t, fw.msgs, 1)
	assert.Equal(t, "bedroom_temp", string(fw.msgs[0].Key))
	var rec Record
	require.NoError(t, json.Unmarshal(fw.msgs[0].Value, &rec))
	assert.Equal(t, Record{Measurement: "temperature", Field: "bedroom_temp", Value: 22, Timestamp: ts}, rec)

	require.NoError(t, w.Close())
	assert.True(t, fw.closed)
}

func TestWriter_WriteError(t *testing.T) {
	cause := errors.New("leader not available")
	w := &Writer{w: &fakeWriter{err: cause}, now: time.Now}

	err := w.Write(context.Background(), "temperature", "attic_hum", 40)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "attic_hum")
}

func TestWriter_Ping(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		if c, err := ln.Accept(); err == nil {
			_ = c.Close()
		}
	}()

	up := &Writer{brokers: []string{ln.Addr().String()}}
	assert.NoError(t, up.Ping(context.Background()))

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := closed.Addr().String()
	require.NoError(t, closed.Close())

	down := &Writer{brokers: []string{addr}}
	assert.Error(t, down.Ping(context.Background()))
}
