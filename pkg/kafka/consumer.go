// Package kafka wraps segmentio/kafka-go with a JSON event producer and a
// typed consumer that commits an offset only after its handler succeeds.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/health"
	"github.com/segmentio/kafka-go"
)

// Handler processes one decoded event.
type Handler[T any] func(ctx context.Context, event T) error

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerStats counts messages seen by a Consumer.
type ConsumerStats struct {
	Handled int64 `json:"handled"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

// Consumer reads JSON events of type T from one topic as a member of the
// configured consumer group.
type Consumer[T any] struct {
	topic  string
	reader messageReader
	handle Handler[T]
	logger *slog.Logger

	handled, failed, dropped atomic.Int64

	mu       sync.Mutex
	fetchErr error
}

func NewConsumer[T any](cfg config.KafkaConfig, topic string, handle Handler[T]) *Consumer[T] {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(topic, r, handle)
}

func newConsumer[T any](topic string, r messageReader, handle Handler[T]) *Consumer[T] {
	return &Consumer[T]{
		topic:  topic,
		reader: r,
		handle: handle,
		logger: slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Run consumes until ctx is cancelled and closes the reader on return.
// Messages that do not decode as T are logged and committed; handler
// failures leave the message uncommitted.
func (c *Consumer[T]) Run(ctx context.Context) error {
	defer c.reader.Close()
	c.logger.Info("consumer started")

	backoff := 100 * time.Millisecond
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "stats", c.Stats())
				return nil
			}
			c.setFetchErr(err)
			c.logger.Error("fetch failed", "error", err, "backoff", backoff)
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, 5*time.Second)
			continue
		}
		backoff = 100 * time.Millisecond
		c.setFetchErr(nil)
		c.process(ctx, msg)
	}
}

func (c *Consumer[T]) process(ctx context.Context, msg kafka.Message) {
	var event T
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.dropped.Add(1)
		c.logger.Warn("dropping undecodable message", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		c.commit(ctx, msg)
		return
	}
	if err := c.handle(ctx, event); err != nil {
		c.failed.Add(1)
		c.logger.Error("handler failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return
	}
	c.handled.Add(1)
	c.commit(ctx, msg)
}

func (c *Consumer[T]) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		c.logger.Error("commit failed", "offset", msg.Offset, "error", err)
	}
}

func (c *Consumer[T]) Stats() ConsumerStats {
	return ConsumerStats{Handled: c.handled.Load(), Failed: c.failed.Load(), Dropped: c.dropped.Load()}
}

// Check reports degraded while the most recent fetch from the broker failed.
func (c *Consumer[T]) Check(context.Context) health.ComponentHealth {
	c.mu.Lock()
	err := c.fetchErr
	c.mu.Unlock()
	if err != nil {
		return health.ComponentHealth{Status: health.StatusDegraded, Message: fmt.Sprintf("%s: %v", c.topic, err)}
	}
	return health.ComponentHealth{Status: health.StatusUp}
}

func (c *Consumer[T]) setFetchErr(err error) {
	c.mu.Lock()
	c.fetchErr = err
	c.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
