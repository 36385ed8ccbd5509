package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Write(ctx context.Context, measurement, field string, value float64) error {
	return m.Called(ctx, measurement, field, value).Error(0)
}

func (m *mockSink) Close() error {
	return m.Called().Error(0)
}

func newTestBridge(s *mockSink) *Bridge {
	return New("home/", "temperature", s, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func TestTopics(t *testing.T) {
	got := Topics("home/", map[string]string{
		"6f:15:00:00:00:42": "livingroom",
		"6f:15:00:00:0c:b1": "bedroom",
	})
	assert.Equal(t, []string{
		"home/bedroom_hum",
		"home/bedroom_temp",
		"home/livingroom_hum",
		"home/livingroom_temp",
	}, got)
}

func TestTopics_SharedLocation(t *testing.T) {
	got := Topics("", map[string]string{
		"6f:15:00:00:00:42": "attic",
		"6f:15:00:00:00:43": "attic",
	})
	assert.Equal(t, []string{"attic_hum", "attic_temp"}, got)
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{in: "21.50", want: 21.5},
		{in: " 42.125\n", want: 42.13},
		{in: "-2.875", want: -2.88},
		{in: "150", want: 150},
	}
	for _, tt := range tests {
		got, err := ParseValue([]byte(tt.in))
		require.NoError(t, err, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}

	for _, bad := range []string{"", "warm", "NaN", "+Inf"} {
		_, err := ParseValue([]byte(bad))
		assert.ErrorIs(t, err, ErrInvalidPayload, bad)
	}
}

func TestHandleMessage_Forwards(t *testing.T) {
	s := &mockSink{}
	s.On("Write", mock.Anything, "temperature", "livingroom_temp", 21.5).Return(nil).Once()

	err := newTestBridge(s).HandleMessage(context.Background(), "home/livingroom_temp", []byte("21.50"))

	require.NoError(t, err)
	s.AssertExpectations(t)
}

func TestHandleMessage_InvalidPayloadNotWritten(t *testing.T) {
	s := &mockSink{}

	err := newTestBridge(s).HandleMessage(context.Background(), "home/bedroom_hum", []byte("n/a"))

	require.ErrorIs(t, err, ErrInvalidPayload)
	s.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleMessage_SinkError(t *testing.T) {
	cause := errors.New("influx down")
	s := &mockSink{}
	s.On("Write", mock.Anything, "temperature", "bedroom_hum", 50.0).Return(cause)

	err := newTestBridge(s).HandleMessage(context.Background(), "home/bedroom_hum", []byte("50.00"))

	require.ErrorIs(t, err, cause)
}

func TestHandler_AppliesDeadline(t *testing.T) {
	s := &mockSink{}
	s.On("Write", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), "temperature", "attic_temp", 19.0).Return(nil).Once()

	h := newTestBridge(s).Handler(context.Background())
	require.NoError(t, h("home/attic_temp", []byte("19")))
	s.AssertExpectations(t)
}
