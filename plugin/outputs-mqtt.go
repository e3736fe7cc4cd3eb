package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	Nt "github.com/maroda/neurales/types"
)

// Publisher is the part of mqtt.Client the emitter uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTEmitter publishes payloads to <Topic>/<Session> at QoS 0.
type MQTTEmitter struct {
	Client  Publisher
	Topic   string
	Session string
	Timeout time.Duration
}

// NewMQTTClient connects to the first reachable broker in the list.
func NewMQTTClient(brokers []string, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	for _, b := range brokers {
		opts.AddBroker(b)
	}

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	slog.Info("MQTT connected", slog.Any("brokers", brokers), slog.String("clientID", clientID))
	return c, nil
}

func NewMQTTEmitter(c Publisher, topic, session string) *MQTTEmitter {
	return &MQTTEmitter{Client: c, Topic: topic, Session: session, Timeout: 5 * time.Second}
}

func (me *MQTTEmitter) Emit(ctx context.Context, p *Nt.Payload) error {
	return me.publish(ctx, p)
}

func (me *MQTTEmitter) EmitError(ctx context.Context, e Nt.ErrorPayload) error {
	return me.publish(ctx, e)
}

func (me *MQTTEmitter) publish(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	topic := me.Topic + "/" + me.Session
	token := me.Client.Publish(topic, 0, false, b)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(me.Timeout):
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		slog.Error("MQTTEmitter could not publish", slog.String("topic", topic), slog.Any("error", err))
		return fmt.Errorf("mqtt publish: %w", err)
	}
	return nil
}

func (me *MQTTEmitter) Type() string { return "mqtt" }
