package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/config"
	"github.com/segmentio/kafka-go"
)

// TypeHeader carries Event.Type on the wire.
const TypeHeader = "event-type"

// Event is one JSON message. Key picks the partition; Type, when set, is
// sent as the TypeHeader header.
type Event struct {
	Key   string
	Type  string
	Value any
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes events to one topic. Writes are synchronous so callers
// see delivery failures.
type Producer struct {
	topic  string
	writer messageWriter
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return newProducer(topic, &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	})
}

func newProducer(topic string, w messageWriter) *Producer {
	return &Producer{
		topic:  topic,
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

func encode(events []Event) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, len(events))
	for i, e := range events {
		value, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding event %q: %w", e.Key, err)
		}
		msgs[i] = kafka.Message{Key: []byte(e.Key), Value: value}
		if e.Type != "" {
			msgs[i].Headers = []kafka.Header{{Key: TypeHeader, Value: []byte(e.Type)}}
		}
	}
	return msgs, nil
}

func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch encodes every event before writing, so one bad value fails
// the whole batch without sending any of it.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs, err := encode(events)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("writing %d messages to %s: %w", len(msgs), p.topic, err)
	}
	p.logger.Debug("published", "count", len(msgs))
	return nil
}

// Close flushes buffered messages.
func (p *Producer) Close() error {
	return p.writer.Close()
}
