package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const (
	mqttTopicPrefix   = "bedtrack/"
	mqttBroadcastPath = "all"
	mqttQoS           = 1
	mqttPublishWait   = 5 * time.Second
)

// mqttPublisher is the part of mqtt.Client the bridge needs.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTBridge publishes events to bedtrack/<topic> for ward display panels.
// Broadcasts go to bedtrack/all.
type MQTTBridge struct {
	client mqttPublisher
	logger zerolog.Logger
}

// DialMQTT connects to broker and returns a bridge on the connection.
func DialMQTT(brokerURL, clientID string, logger zerolog.Logger) (*MQTTBridge, func(), error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, nil, fmt.Errorf("connect mqtt broker %s: timed out", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, nil, fmt.Errorf("connect mqtt broker %s: %w", brokerURL, err)
	}
	closeFn := func() { client.Disconnect(250) }
	return NewMQTTBridge(client, logger), closeFn, nil
}

func NewMQTTBridge(client mqttPublisher, logger zerolog.Logger) *MQTTBridge {
	return &MQTTBridge{
		client: client,
		logger: logger.With().Str("component", "mqtt_bridge").Logger(),
	}
}

func (b *MQTTBridge) Broadcast(_ context.Context, event Event) error {
	return b.send(mqttTopicPrefix+mqttBroadcastPath, event)
}

func (b *MQTTBridge) Publish(_ context.Context, topic string, event Event) error {
	event.Topic = topic
	return b.send(mqttTopicPrefix+topic, event)
}

func (b *MQTTBridge) send(topic string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal mqtt event: %w", err)
	}
	token := b.client.Publish(topic, mqttQoS, false, payload)
	if !token.WaitTimeout(mqttPublishWait) {
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", topic, err)
	}
	b.logger.Debug().Str("mqtt_topic", topic).Str("event_type", event.Type).Msg("event published")
	return nil
}
