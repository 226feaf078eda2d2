package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/rjboer/udpsource/internal/logging"
)

// MQTTConfig describes the broker connection used to publish telemetry.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
	Retain   bool
}

const mqttPublishTimeout = 2 * time.Second

// MQTTPublisher publishes refreshed snapshots as JSON.
type MQTTPublisher struct {
	client mqtt.Client
	cfg    MQTTConfig
	logger logging.Logger
}

type mqttPayload struct {
	Instance string `json:"instance,omitempty"`
	Snapshot
}

// NewMQTTPublisher connects to the broker and returns a publisher.
func NewMQTTPublisher(cfg MQTTConfig, logger logging.Logger) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt topic is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With(logging.Field{Key: "subsystem", Value: "mqtt"})

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("connected to broker", logging.Field{Key: "broker", Value: cfg.Broker})
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("connection lost", logging.Field{Key: "error", Value: err})
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, token.Error())
	}
	return newMQTTPublisher(client, cfg, logger), nil
}

func newMQTTPublisher(client mqtt.Client, cfg MQTTConfig, logger logging.Logger) *MQTTPublisher {
	return &MQTTPublisher{client: client, cfg: cfg, logger: logger}
}

// Report publishes decimated ticks without waiting for the broker.
func (p *MQTTPublisher) Report(snap Snapshot) {
	if !snap.PowerRefreshed {
		return
	}
	payload, err := json.Marshal(mqttPayload{Instance: p.cfg.ClientID, Snapshot: snap})
	if err != nil {
		p.logger.Error("encode snapshot", logging.Field{Key: "error", Value: err})
		return
	}
	token := p.client.Publish(p.cfg.Topic, p.cfg.QoS, p.cfg.Retain, payload)
	if token == nil {
		return
	}
	go func() {
		if token.WaitTimeout(mqttPublishTimeout) && token.Error() != nil {
			p.logger.Warn("publish failed", logging.Field{Key: "topic", Value: p.cfg.Topic}, logging.Field{Key: "error", Value: token.Error()})
		}
	}()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
