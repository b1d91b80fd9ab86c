package mqtt

import (
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/sentryhome/sentryhome/internal/config"
)

const (
	connectTimeout   = 10 * time.Second
	operationTimeout = 5 * time.Second
)

// MessageHandler processes one message received on topic.
type MessageHandler func(topic string, payload []byte) error

// Client wraps a paho client, keeping handlers registered across reconnects.
type Client struct {
	client    mqtt.Client
	cfg       config.MQTTConfig
	log       zerolog.Logger
	handlers  map[string]MessageHandler
	mu        sync.RWMutex
	connected bool
}

// NewClient prepares a client for the broker in cfg. It does not connect.
func NewClient(cfg config.MQTTConfig, log zerolog.Logger) *Client {
	c := &Client{
		cfg:      cfg,
		log:      log.With().Str("component", "mqtt").Logger(),
		handlers: make(map[string]MessageHandler),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.client = mqtt.NewClient(opts)
	return c
}

func (c *Client) Connect() error {
	c.log.Info().Str("broker", c.cfg.Broker).Msg("Connecting to MQTT broker")

	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connection timeout after %v", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	c.log.Info().Msg("Successfully connected to MQTT broker")
	return nil
}

func (c *Client) Disconnect() {
	c.log.Info().Msg("Disconnecting from MQTT broker")

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.client.Disconnect(250)
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// Subscribe registers handler for topic, which may contain + and #
// wildcards.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	if !c.IsConnected() {
		return fmt.Errorf("not connected to broker")
	}

	c.mu.Lock()
	c.handlers[topic] = handler
	c.mu.Unlock()

	token := c.client.Subscribe(topic, c.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		c.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(operationTimeout) {
		return fmt.Errorf("subscribe timeout for topic: %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe failed for topic %s: %w", topic, err)
	}

	c.log.Info().Str("topic", topic).Uint8("qos", c.cfg.QoS).Msg("Subscribed to topic")
	return nil
}

func (c *Client) handleMessage(topic string, payload []byte) {
	c.log.Debug().Str("topic", topic).Int("bytes", len(payload)).Msg("Received message")

	handler, ok := c.handlerFor(topic)
	if !ok {
		c.log.Warn().Str("topic", topic).Msg("No handler found for topic")
		return
	}
	if err := handler(topic, payload); err != nil {
		c.log.Error().Err(err).Str("topic", topic).Msg("Handler error")
	}
}

func (c *Client) handlerFor(topic string) (MessageHandler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if handler, ok := c.handlers[topic]; ok {
		return handler, true
	}
	for pattern, handler := range c.handlers {
		if matchTopic(pattern, topic) {
			return handler, true
		}
	}
	return nil, false
}

func (c *Client) onConnect(client mqtt.Client) {
	c.mu.Lock()
	c.connected = true
	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}
	c.mu.Unlock()

	c.log.Info().Msg("MQTT connection established")

	for _, topic := range topics {
		c.log.Debug().Str("topic", topic).Msg("Re-subscribing to topic")
		token := client.Subscribe(topic, c.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			c.handleMessage(msg.Topic(), msg.Payload())
		})
		if token.Wait() && token.Error() != nil {
			c.log.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to re-subscribe")
		}
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.log.Error().Err(err).Msg("MQTT connection lost")
}

func (c *Client) onReconnecting(mqtt.Client, *mqtt.ClientOptions) {
	c.log.Warn().Msg("Attempting to reconnect to MQTT broker")
}

// matchTopic reports whether topic matches the subscription pattern.
func matchTopic(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	patternParts := strings.Split(pattern, "/")
	topicParts := strings.Split(topic, "/")

	for i, part := range patternParts {
		if part == "#" {
			return i == len(patternParts)-1
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}
	return len(patternParts) == len(topicParts)
}
