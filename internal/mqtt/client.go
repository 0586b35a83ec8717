package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ponytojas/mqtt-team-bridge/config"
)

// disconnectQuiesce is how long Disconnect waits for in-flight work, in ms
const disconnectQuiesce = 250

// MessageHandler receives every message delivered on a subscribed topic
type MessageHandler func(topic string, payload []byte)

// Client handles MQTT connection, team subscriptions and publishing
type Client struct {
	client  mqtt.Client
	config  *config.Config
	topics  []string
	handler MessageHandler
	logger  zerolog.Logger
}

// NewClientID returns prefix plus eight random hex characters
func NewClientID(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return prefix + "-" + suffix
}

// NewClient creates a new MQTT client. Every topic is (re)subscribed on each
// successful connect, so subscriptions survive auto-reconnects. A nil handler
// makes a publish-only client.
func NewClient(cfg *config.Config, clientIDPrefix string, topics []string, handler MessageHandler) *Client {
	c := &Client{
		config:  cfg,
		topics:  topics,
		handler: handler,
		logger:  log.With().Str("component", "mqtt").Logger(),
	}

	opts := mqtt.NewClientOptions()
	brokerURL := cfg.GetMQTTBrokerURL()
	opts.AddBroker(brokerURL)
	opts.SetClientID(NewClientID(clientIDPrefix))
	opts.SetCleanSession(cfg.MQTT.CleanSession)

	// Configure TLS if using SSL or WSS
	if cfg.UsesTLS() {
		c.logger.Info().Msgf("Configuring TLS for secure connection to %s", brokerURL)
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	if username, password := cfg.MQTTCredentials(); username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	if cfg.MQTT.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.MQTT.ConnectTimeout)
	}

	// Handlers run in their own goroutines; no ordering between messages
	opts.SetOrderMatters(false)

	opts.SetAutoReconnect(true)
	if cfg.MQTT.ReconnectPeriod > 0 {
		opts.SetMaxReconnectInterval(cfg.MQTT.ReconnectPeriod)
	}
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		c.logger.Info().Msg("Connected to MQTT broker")
		c.subscribeAll(client)
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		c.logger.Warn().Err(err).Msg("Connection lost")
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		c.logger.Warn().Msg("Reconnecting to MQTT broker...")
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect connects to the MQTT broker
func (c *Client) Connect() error {
	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	c.logger.Info().Msgf("Connected to MQTT broker: %s", c.config.GetMQTTBrokerURL())
	return nil
}

// subscribeAll subscribes to every team topic. A failed topic is logged and
// does not stop the others.
func (c *Client) subscribeAll(client mqtt.Client) {
	if c.handler == nil {
		return
	}

	callback := func(_ mqtt.Client, msg mqtt.Message) {
		c.handler(msg.Topic(), msg.Payload())
	}

	qos := byte(c.config.MQTT.QoS)
	for _, topic := range c.topics {
		token := client.Subscribe(topic, qos, callback)
		if token.Wait() && token.Error() != nil {
			c.logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to subscribe")
			continue
		}
		c.logger.Info().Str("topic", topic).Msg("Subscribed to topic")
	}
}

// Unsubscribe drops every team subscription
func (c *Client) Unsubscribe() error {
	if len(c.topics) == 0 || c.handler == nil {
		return nil
	}
	token := c.client.Unsubscribe(c.topics...)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe: %w", token.Error())
	}
	return nil
}

// Publish sends payload to topic and waits for the broker to accept it or
// for ctx to end
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	token := c.client.Publish(topic, byte(c.config.MQTT.QoS), false, payload)

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}
}

// IsConnected reports whether the client currently holds a broker connection
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Disconnect disconnects from the MQTT broker
func (c *Client) Disconnect() {
	c.client.Disconnect(disconnectQuiesce)
	c.logger.Info().Msg("Disconnected from MQTT broker")
}
