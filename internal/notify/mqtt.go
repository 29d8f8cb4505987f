// Package notify publishes alerts to external systems
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/emmett/chime/internal/alert"
	"github.com/mdobak/go-xerrors"
)

// MQTTConfig configures the MQTT publisher
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	Topic    string // base topic, state goes to <topic>/state
	ClientID string
	Username string
	Password string
	QoS      byte
	Timeout  time.Duration
}

// publishClient is the part of mqtt.Client the publisher uses
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher sends alert state changes to an MQTT broker. It implements
// alert.Handler.
type MQTTPublisher struct {
	client  publishClient
	topic   string
	qos     byte
	timeout time.Duration
	logger  *slog.Logger
}

// Message is the JSON payload published for every state change
type Message struct {
	State     string    `json:"state"` // "detected" or "cleared"
	AlertID   string    `json:"alert_id"`
	Pattern   string    `json:"pattern"`
	Score     int       `json:"score"`
	Threshold int       `json:"threshold"`
	Matches   int       `json:"matches"`
	Time      time.Time `json:"time"`
}

// NewMQTTPublisher connects to the broker. CHIME_MQTT_BROKER overrides an
// empty cfg.Broker.
func NewMQTTPublisher(cfg MQTTConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		cfg.Broker = os.Getenv("CHIME_MQTT_BROKER")
	}
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is not configured")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "chime"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: %w", cfg.Broker, token.Error())
	}

	return newMQTTPublisher(client, cfg, logger), nil
}

func newMQTTPublisher(client publishClient, cfg MQTTConfig, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	topic := strings.TrimSuffix(cfg.Topic, "/")
	if topic == "" {
		topic = "chime"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &MQTTPublisher{
		client:  client,
		topic:   topic,
		qos:     cfg.QoS,
		timeout: timeout,
		logger:  logger.With("component", "mqtt"),
	}
}

// StateTopic returns the topic state messages are published on
func (p *MQTTPublisher) StateTopic() string {
	return p.topic + "/state"
}

func (p *MQTTPublisher) AlertRaised(a alert.Alert) {
	p.publish(Message{
		State:     "detected",
		AlertID:   a.ID,
		Pattern:   a.Pattern,
		Score:     a.Score,
		Threshold: a.Threshold,
		Matches:   a.Matches,
		Time:      a.StartedAt,
	})
}

func (p *MQTTPublisher) AlertCleared(a alert.Alert) {
	p.publish(Message{
		State:     "cleared",
		AlertID:   a.ID,
		Pattern:   a.Pattern,
		Score:     a.Score,
		Threshold: a.Threshold,
		Matches:   a.Matches,
		Time:      a.ClearedAt,
	})
}

func (p *MQTTPublisher) publish(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("failed to encode mqtt message", slog.Any("error", xerrors.New(err)))
		return
	}

	// Retained so late subscribers see the current state
	token := p.client.Publish(p.StateTopic(), p.qos, true, payload)
	if !token.WaitTimeout(p.timeout) {
		p.logger.Warn("mqtt publish timed out", slog.String("topic", p.StateTopic()))
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Warn("mqtt publish failed", slog.String("topic", p.StateTopic()), slog.Any("error", xerrors.New(err)))
		return
	}
	p.logger.Debug("published alert state", slog.String("state", msg.State))
}

// Close disconnects from the broker
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
