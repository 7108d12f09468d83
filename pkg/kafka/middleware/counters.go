package kafka_middleware

import (
	"context"
	"sync/atomic"
	"time"

	"campusloans/pkg/kafka"
)

// Counters tracks message throughput for one service. It is reported by the
// readiness endpoint.
type Counters struct {
	published       atomic.Int64
	publishFailed   atomic.Int64
	consumed        atomic.Int64
	consumeFailed   atomic.Int64
	consumeDuration atomic.Int64
}

type CountersSnapshot struct {
	Published          int64  `json:"published"`
	PublishFailed      int64  `json:"publish_failed"`
	Consumed           int64  `json:"consumed"`
	ConsumeFailed      int64  `json:"consume_failed"`
	AvgConsumeDuration string `json:"avg_consume_duration"`
}

func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) Snapshot() CountersSnapshot {
	consumed := c.consumed.Load()
	failed := c.consumeFailed.Load()

	var avg time.Duration
	if total := consumed + failed; total > 0 {
		avg = time.Duration(c.consumeDuration.Load() / total)
	}

	return CountersSnapshot{
		Published:          c.published.Load(),
		PublishFailed:      c.publishFailed.Load(),
		Consumed:           consumed,
		ConsumeFailed:      failed,
		AvgConsumeDuration: avg.String(),
	}
}

func CountingProducerMiddleware(c *Counters) kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		err := next(ctx, msg)
		if err != nil {
			c.publishFailed.Add(1)
		} else {
			c.published.Add(1)
		}
		return err
	}
}

func CountingConsumerMiddleware(c *Counters) kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)
		c.consumeDuration.Add(int64(time.Since(start)))
		if err != nil {
			c.consumeFailed.Add(1)
		} else {
			c.consumed.Add(1)
		}
		return err
	}
}
