// Package mqttmirror republishes change batches on an MQTT broker, in the
// N/<portal>/<category>/<instance>/<path> layout Victron's MQTT bridge uses.
package mqttmirror

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/victron-virtual/dbus-virtual-go/pkg/interaction"
	"github.com/victron-virtual/dbus-virtual-go/pkg/model"
)

// Errors returned by the mirror.
var (
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrInvalidQoS       = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	maxQoS                   = 2
)

// Config configures the broker connection.
type Config struct {
	// BrokerURL is tcp://host:port or ssl://host:port.
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	QoS       byte
	Retain    bool

	// TLS enables TLS 1.2+ with system roots when BrokerURL is ssl://.
	TLS bool
}

// Publisher is the part of a paho client the mirror uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// Mirror publishes every change of a device as {"value": v}.
type Mirror struct {
	pub    Publisher
	client pahomqtt.Client
	topics Topics
	qos    byte
	retain bool
	logger *slog.Logger
}

// Connect dials the broker and returns a mirror for topics. The broker's
// last will marks the device offline if the process dies.
func Connect(cfg Config, topics Topics, logger *slog.Logger) (*Mirror, error) {
	if cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.SetWill(topics.Status(), string(statusPayload(false)), cfg.QoS, true)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		if logger != nil {
			logger.Warn("mqtt connection lost", "broker", cfg.BrokerURL, "error", err)
		}
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	m := New(client, topics, cfg.QoS, cfg.Retain, logger)
	m.client = client
	m.publish(topics.Status(), statusPayload(true), true)
	return m, nil
}

// New creates a mirror on an existing publisher.
func New(pub Publisher, topics Topics, qos byte, retain bool, logger *slog.Logger) *Mirror {
	return &Mirror{pub: pub, topics: topics, qos: qos, retain: retain, logger: logger}
}

// Topics returns the topic layout.
func (m *Mirror) Topics() Topics {
	return m.topics
}

// Notify publishes one message per change. Publishing does not wait for the
// broker; failures are logged.
func (m *Mirror) Notify(batch interaction.ChangeSet) {
	m.PublishAll(batch.Changes)
}

// PublishAll publishes the given values, e.g. a full snapshot after start.
func (m *Mirror) PublishAll(changes []model.Change) {
	for _, c := range changes {
		payload, err := valuePayload(c.Value)
		if err != nil {
			m.warn("mqtt payload encoding failed", "path", c.Name, "error", err)
			continue
		}
		m.publish(m.topics.Value(c.Name), payload, m.retain)
	}
}

func (m *Mirror) publish(topic string, payload []byte, retain bool) {
	token := m.pub.Publish(topic, m.qos, retain, payload)
	go func() {
		if !token.WaitTimeout(defaultPublishTimeout) {
			m.warn("mqtt publish timed out", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			m.warn("mqtt publish failed", "topic", topic, "error", fmt.Errorf("%w: %w", ErrPublishFailed, err))
		}
	}()
}

// Close marks the device offline and disconnects.
func (m *Mirror) Close() {
	if m.client == nil {
		return
	}
	if m.client.IsConnected() {
		m.client.Publish(m.topics.Status(), m.qos, true, statusPayload(false)).WaitTimeout(defaultPublishTimeout)
	}
	m.client.Disconnect(defaultDisconnectQuiesce)
}

func (m *Mirror) warn(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Warn(msg, args...)
	}
}

type valueMessage struct {
	Value any `json:"value"`
}

func valuePayload(v any) ([]byte, error) {
	return json.Marshal(valueMessage{Value: v})
}

func statusPayload(online bool) []byte {
	if online {
		return []byte(`{"value":1}`)
	}
	return []byte(`{"value":0}`)
}

var _ interaction.Notifier = (*Mirror)(nil)
