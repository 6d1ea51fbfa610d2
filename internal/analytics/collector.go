package analytics

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

// Collector buffers search events and publishes them to Kafka in batches,
// when a batch fills up or the flush interval passes. Tracking never
// blocks the request path: events are dropped when the buffer is full.
type Collector struct {
	publisher     kafka.Publisher
	eventCh       chan SearchEvent
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
	dropped       atomic.Int64
	started       atomic.Bool

	mu     sync.RWMutex
	closed bool
}

func NewCollector(publisher kafka.Publisher, cfg config.AnalyticsConfig) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		eventCh:       make(chan SearchEvent, cfg.BufferSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the publish loop. Cancelling ctx, or calling Close,
// flushes what is buffered and stops it.
func (c *Collector) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.loop(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

func (c *Collector) loop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	// While failing, full batches wait for the ticker so a broker outage
	// costs one publish per interval instead of one per event.
	failing := false
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				c.finalFlush(batch)
				return
			}
			batch = append(batch, toKafka(event))
			switch {
			case failing:
				batch = c.trimBacklog(batch)
			case len(batch) >= c.batchSize:
				batch, failing = c.flush(ctx, batch)
			}
		case <-ticker.C:
			batch, failing = c.flush(ctx, batch)
		case <-ctx.Done():
		drain:
			for {
				select {
				case event, ok := <-c.eventCh:
					if !ok {
						break drain
					}
					batch = append(batch, toKafka(event))
				default:
					break drain
				}
			}
			c.finalFlush(batch)
			return
		}
	}
}

func toKafka(event SearchEvent) kafka.Event {
	key := strings.Join(event.Terms, " ")
	if key == "" {
		key = string(event.Type)
	}
	return kafka.Event{Key: key, Value: event}
}

func (c *Collector) finalFlush(batch []kafka.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if rest, _ := c.flush(ctx, batch); len(rest) > 0 {
		c.logger.Warn("analytics events lost on shutdown", "events", len(rest))
	}
}

// flush publishes batch and returns the buffer to keep filling and whether
// the publish failed. Failed events are kept for the next attempt.
func (c *Collector) flush(ctx context.Context, batch []kafka.Event) ([]kafka.Event, bool) {
	if len(batch) == 0 {
		return batch, false
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("analytics flush failed", "events", len(batch), "error", err)
		return c.trimBacklog(batch), true
	}
	c.logger.Debug("analytics batch published", "events", len(batch))
	return make([]kafka.Event, 0, c.batchSize), false
}

// trimBacklog drops the oldest events beyond three batches' worth.
func (c *Collector) trimBacklog(batch []kafka.Event) []kafka.Event {
	limit := c.batchSize * 3
	if len(batch) <= limit {
		return batch
	}
	dropped := len(batch) - limit
	c.dropped.Add(int64(dropped))
	c.logger.Warn("analytics backlog full, events dropped", "dropped", dropped)
	return batch[dropped:]
}

// Track queues event for publishing. It is safe to call on a nil
// Collector, which discards everything.
func (c *Collector) Track(event SearchEvent) {
	if c == nil {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Dropped returns how many events were discarded.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events, flushes the buffer and waits for the
// publish loop to exit.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	if c.started.Load() {
		<-c.done
	}
}
