package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/nunofsantos/coop-controller/internal/config"
	"github.com/nunofsantos/coop-controller/internal/notify"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	logger *zap.Logger

	mu        sync.Mutex
	outbox    *outbox
	connected bool
	everUp    bool
}

// NewRealPublisher creates a publisher for the configured broker. A broker
// that is unreachable at startup is not fatal: the client keeps retrying in
// the background and messages are buffered meanwhile.
func NewRealPublisher(cfg config.MQTTConfig, logger *zap.Logger) (*RealPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is not configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "coop-controller"
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 100
	}

	p := &RealPublisher{
		topics: TopicsFor(cfg.TopicPrefix),
		logger: logger.With(zap.String("component", "mqtt")),
		outbox: newOutbox(size),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "connection lost",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(p.topics.System, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.logger.Warn("mqtt connect timed out, retrying in background", zap.String("broker", cfg.Broker))
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// Topics returns the topics the publisher writes to.
func (p *RealPublisher) Topics() Topics { return p.topics }

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connected = true
	reconnect := p.everUp
	p.everUp = true
	pending, dropped := p.outbox.flush()
	p.mu.Unlock()

	p.logger.Info("mqtt connected", zap.Bool("reconnect", reconnect), zap.Int("replaying", len(pending)), zap.Int("dropped", dropped))

	if reconnect {
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		if err == nil {
			c.Publish(p.topics.System, 1, true, payload)
		}
	}
	for _, m := range pending {
		t := c.Publish(m.topic, m.qos, m.retained, m.payload)
		if !t.WaitTimeout(publishTimeout) || t.Error() != nil {
			p.logger.Warn("mqtt replay failed", zap.String("topic", m.topic), zap.Error(t.Error()))
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.logger.Warn("mqtt connection lost", zap.Error(err))
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		full := p.outbox.add(pendingMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		if full {
			p.logger.Warn("mqtt outbox full, dropping oldest messages", zap.Int("capacity", p.outbox.capacity))
		}
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// PublishAlert sends a notification on the alerts topic.
func (p *RealPublisher) PublishAlert(n notify.Notification) error {
	payload, err := FormatAlertPayload(n)
	if err != nil {
		return fmt.Errorf("format alert payload: %w", err)
	}
	return p.publish(p.topics.Alerts, 1, false, payload)
}

// PublishStatus sends a retained status snapshot.
func (p *RealPublisher) PublishStatus(payload []byte) error {
	return p.publish(p.topics.Status, 0, true, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) - lifecycle events should not be lost
	return p.publish(p.topics.System, 1, event.Retained, payload)
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
