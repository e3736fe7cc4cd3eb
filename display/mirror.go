package neurales

import (
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"

	Np "github.com/maroda/neurales/plugin"
	Ns "github.com/maroda/neurales/server"
)

// Mirror holds one broker connection shared by all sessions.
// Each session gets its own emitter keyed by its id.
type Mirror struct {
	Kind   string
	Topic  string
	Kafka  *kafka.Writer
	MQTT   mqtt.Client
	closed bool
}

func NewMirror(mc Ns.MirrorConfig) (*Mirror, error) {
	m := &Mirror{Kind: mc.Kind, Topic: mc.Topic}
	switch mc.Kind {
	case "kafka":
		m.Kafka = Np.NewKafkaWriter(mc.Brokers, mc.Topic)
	case "mqtt":
		c, err := Np.NewMQTTClient(mc.Brokers, "neurales-"+NewSessionID()[:8])
		if err != nil {
			slog.Error("Failed to connect mirror", slog.String("kind", mc.Kind), slog.Any("error", err))
			return nil, err
		}
		m.MQTT = c
	default:
		return nil, fmt.Errorf("unknown mirror: %s", mc.Kind)
	}
	slog.Info("Payload mirror enabled",
		slog.String("kind", mc.Kind),
		slog.String("topic", mc.Topic),
		slog.Any("brokers", mc.Brokers))
	return m, nil
}

// Emitter returns a session's emitter on the shared connection
func (m *Mirror) Emitter(sessionID string) Np.PayloadEmitter {
	switch {
	case m.Kafka != nil:
		return Np.NewKafkaEmitter(m.Kafka, m.Topic, sessionID)
	case m.MQTT != nil:
		return Np.NewMQTTEmitter(m.MQTT, m.Topic, sessionID)
	}
	return nil
}

func (m *Mirror) Close() {
	if m.closed {
		return
	}
	m.closed = true
	if m.Kafka != nil {
		if err := m.Kafka.Close(); err != nil {
			slog.Error("Failed to close kafka mirror", slog.Any("error", err))
		}
	}
	if m.MQTT != nil {
		m.MQTT.Disconnect(250)
	}
}
