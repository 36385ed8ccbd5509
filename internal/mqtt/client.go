package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nkalkhof/ThermoBeacon/internal/config"
)

const publishTimeout = 5 * time.Second

var (
	ErrNotConnected = errors.New("mqtt client not connected")
	ErrStopped      = errors.New("mqtt client stopped")
)

// Client publishes each field as its own message and implements sink.Writer.
type Client struct {
	client      mqtt.Client
	broker      string
	topicPrefix string
	logger      *slog.Logger
	mu          sync.RWMutex
	connected   bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewClient(cfg config.Config, logger *slog.Logger) *Client {
	c := &Client{
		broker:      brokerURL(cfg),
		topicPrefix: cfg.MQTTTopicPrefix,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
	c.client = mqtt.NewClient(clientOptions(cfg, cfg.MQTTClientID, logger, c.setConnected))
	return c
}

func brokerURL(cfg config.Config) string {
	return fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort)
}

func clientOptions(cfg config.Config, clientID string, logger *slog.Logger, setConnected func(bool)) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(clientID)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort, "client_id", clientID)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})
	return opts
}

// Connect waits for the first connection, honouring ctx and Close.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return ErrStopped
	default:
	}
	if c.IsConnected() {
		return nil
	}
	if err := waitToken(ctx, c.stopCh, c.client.Connect(), "mqtt connect"); err != nil {
		return err
	}
	// The connect handler runs on its own goroutine and may not have fired yet.
	c.setConnected(true)
	return nil
}

func waitToken(ctx context.Context, stop <-chan struct{}, token mqtt.Token, op string) error {
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return ErrStopped
		default:
		}
	}
}

// Write publishes value to <prefix><field>. measurement is not part of the topic.
func (c *Client) Write(ctx context.Context, _ string, field string, value float64) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	topic := Topic(c.topicPrefix, field)
	token := c.client.Publish(topic, 0, false, FormatValue(value))

	wait := publishTimeout
	if dl, ok := ctx.Deadline(); ok {
		wait = min(wait, time.Until(dl))
	}
	if !token.WaitTimeout(wait) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	c.logger.Debug("published", "topic", topic, "value", value)
	return nil
}

func (c *Client) Ping(context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Close stops any pending Connect and disconnects. Safe to call more than once.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.client.Disconnect(250)
	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
	return nil
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func Topic(prefix, field string) string {
	return prefix + field
}

// FormatValue renders a reading with two decimals, e.g. 21.5 -> "21.50".
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
