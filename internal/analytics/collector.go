package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/doc-rag/pkg/kafka"
)

// BatchPublisher is the subset of kafka.Producer the collector needs.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers QueryEvents and publishes them in batches. Track never
// blocks: when the buffer is full the event is dropped.
type Collector struct {
	publisher     BatchPublisher
	eventCh       chan QueryEvent
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
	dropped       atomic.Int64

	// sendMu is read-held across each send so Close cannot close eventCh
	// underneath a Track call.
	sendMu sync.RWMutex
	closed bool
}

func NewCollector(publisher BatchPublisher, bufferSize, batchSize int, flushInterval time.Duration) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan QueryEvent, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start runs the publish loop until ctx is cancelled or Close is called.
// Buffered events are flushed before the loop exits.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		batch := make([]kafka.Event, 0, c.batchSize)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					c.flush(context.Background(), batch)
					return
				}
				batch = append(batch, kafka.Event{Key: event.Query, Type: string(EventQuery), Value: event})
				if len(batch) >= c.batchSize {
					batch = c.flush(ctx, batch)
				}
			case <-ticker.C:
				batch = c.flush(ctx, batch)
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.flush(shutdownCtx, c.drain(batch))
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh), "batch_size", c.batchSize)
}

// Track enqueues event without blocking. Events tracked after Close are
// counted as dropped.
func (c *Collector) Track(event QueryEvent) {
	if event.Type == "" {
		event.Type = EventQuery
	}
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		c.logger.Debug("analytics event dropped (collector closed)")
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Dropped returns how many events were discarded, either because the buffer
// was full or because the collector was already closed.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events and waits for the final flush. It is safe to
// call more than once.
func (c *Collector) Close() {
	c.sendMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.sendMu.Unlock()
	<-c.done
}

func (c *Collector) drain(batch []kafka.Event) []kafka.Event {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return batch
			}
			batch = append(batch, kafka.Event{Key: event.Query, Type: string(EventQuery), Value: event})
		default:
			return batch
		}
	}
}

func (c *Collector) flush(ctx context.Context, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 {
		return batch
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("failed to publish analytics batch", "events", len(batch), "error", err)
	}
	return batch[:0]
}
