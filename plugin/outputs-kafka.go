package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	Nt "github.com/maroda/neurales/types"
)

// MessageWriter is the part of *kafka.Writer the emitter uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEmitter publishes every payload as a JSON message keyed by session,
// so one session's chunks stay on one partition in order.
type KafkaEmitter struct {
	Writer  MessageWriter
	Topic   string
	Session string
}

// KafkaWriteTimeout bounds one chunk's write. It sits on the pacing path.
const KafkaWriteTimeout = 250 * time.Millisecond

// NewKafkaWriter builds the shared writer for a topic.
// Every chunk is its own batch and gets one attempt, so a dead broker
// costs at most KafkaWriteTimeout per chunk.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    1,
		BatchTimeout: time.Millisecond,
		MaxAttempts:  1,
		WriteTimeout: KafkaWriteTimeout,
	}
}

func NewKafkaEmitter(w MessageWriter, topic, session string) *KafkaEmitter {
	return &KafkaEmitter{Writer: w, Topic: topic, Session: session}
}

func (ke *KafkaEmitter) Emit(ctx context.Context, p *Nt.Payload) error {
	return ke.write(ctx, p)
}

func (ke *KafkaEmitter) EmitError(ctx context.Context, e Nt.ErrorPayload) error {
	return ke.write(ctx, e)
}

func (ke *KafkaEmitter) write(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ke.Session),
		Value: b,
		Time:  time.Now(),
	}
	if err := ke.Writer.WriteMessages(ctx, msg); err != nil {
		slog.Error("KafkaEmitter could not write",
			slog.String("topic", ke.Topic),
			slog.String("session", ke.Session),
			slog.Any("error", err))
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (ke *KafkaEmitter) Type() string { return "kafka" }
