package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// RealClient talks to an actual MQTT broker.
type RealClient struct {
	client paho.Client

	mu   sync.Mutex
	subs map[string]paho.MessageHandler
}

// NewRealClient connects to broker. Subscriptions are renewed after every
// reconnect.
func NewRealClient(broker, clientID string) (*RealClient, error) {
	c := &RealClient{subs: make(map[string]paho.MessageHandler)}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.resubscribe).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			qlog.Warn().Err(err).Msg("Broker connection lost")
		})

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	qlog.Info().Str("broker", broker).Str("client_id", clientID).Msg("Connected to broker")
	return c, nil
}

func (c *RealClient) resubscribe(client paho.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for topic, handler := range c.subs {
		token := client.Subscribe(topic, 1, handler)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			qlog.Err(token.Error()).Str("topic", topic).Msg("Resubscribe failed")
		}
	}
}

// Publish sends payload with QoS 0, not retained.
func (c *RealClient) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Subscribe listens on topic with QoS 1.
func (c *RealClient) Subscribe(topic string, handler func(payload []byte)) error {
	mh := func(_ paho.Client, msg paho.Message) {
		handler(msg.Payload())
	}

	c.mu.Lock()
	c.subs[topic] = mh
	c.mu.Unlock()

	token := c.client.Subscribe(topic, 1, mh)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000)
	return nil
}
