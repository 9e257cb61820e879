package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sink persists a batch of events.
type Sink func(ctx context.Context, events []Event) error

// Collector receives frontend events, redacts them, and hands batches
// to the sink. Defaults mirror the browser logger: 10 events per batch,
// 5 second flush interval.
type Collector struct {
	batcher *Batcher[Event]
	log     zerolog.Logger
}

type CollectorOptions struct {
	BatchSize     int
	FlushInterval time.Duration
}

func NewCollector(sink Sink, opts CollectorOptions, log zerolog.Logger) *Collector {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}

	c := &Collector{log: log}
	c.batcher = NewBatcher(opts.BatchSize, opts.FlushInterval, func(events []Event) {
		// Flush runs on its own goroutine; bound the sink call so a
		// stuck database cannot pile flushes up behind Stop.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sink(ctx, events); err != nil {
			c.log.Error().Err(err).Int("events", len(events)).Msg("audit batch write failed")
			return
		}
		c.log.Debug().Int("events", len(events)).Msg("audit batch stored")
	})
	return c
}

// Record queues one event for storage.
func (c *Collector) Record(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	c.batcher.Add(Redact(e))
}

// RecordBatch queues a pre-batched set of events (the collection
// endpoint receives them in groups).
func (c *Collector) RecordBatch(events []Event) {
	for _, e := range events {
		c.Record(e)
	}
}

// Close drains pending events and stops the collector.
func (c *Collector) Close() {
	c.batcher.Stop()
}
