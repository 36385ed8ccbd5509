package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nkalkhof/ThermoBeacon/internal/config"
)

// Handler processes one message; a returned error is logged, never retried.
type Handler func(topic string, payload []byte) error

// Subscriber listens on a fixed set of topics and hands every message to a Handler.
type Subscriber struct {
	client    mqtt.Client
	topics    []string
	handler   Handler
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewSubscriber(cfg config.Config, topics []string, handler Handler, logger *slog.Logger) *Subscriber {
	s := &Subscriber{
		topics:  topics,
		handler: handler,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	opts := clientOptions(cfg, cfg.MQTTClientID+"-bridge", logger, s.setConnected)
	// Subscriptions do not survive a clean-session reconnect.
	opts.OnConnect = func(_ mqtt.Client) {
		s.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		if err := s.subscribe(); err != nil {
			logger.Error("subscribe failed", "error", err)
		}
	}
	s.client = mqtt.NewClient(opts)
	return s
}

// Connect waits for the first connection; subscribing happens in the connect handler.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}
	if err := waitToken(ctx, s.stopCh, s.client.Connect(), "mqtt connect"); err != nil {
		s.client.Disconnect(0)
		return err
	}
	return nil
}

func (s *Subscriber) subscribe() error {
	filters := make(map[string]byte, len(s.topics))
	for _, t := range s.topics {
		filters[t] = 0
	}

	token := s.client.SubscribeMultiple(filters, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for %d topics", len(filters))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.logger.Info("subscribed to mqtt topics", "topics", s.topics)
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "payload", string(payload))
	if err := s.handler(topic, payload); err != nil {
		s.logger.Warn("message dropped", "topic", topic, "error", err)
	}
}

func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Close unsubscribes and disconnects. Safe to call more than once.
func (s *Subscriber) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.IsConnected() {
		s.client.Unsubscribe(s.topics...).WaitTimeout(2 * time.Second)
	}
	s.client.Disconnect(250)
	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
	return nil
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
