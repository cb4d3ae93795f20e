package app

import (
	"context"
	"sync/atomic"
	"time"

	"cryptoRiskEngine/internal/domain"
	"cryptoRiskEngine/internal/metrics"
	"cryptoRiskEngine/internal/ports"
)

const (
	defaultEventBuffer = 256
	defaultSinkTimeout = 2 * time.Second
	eventDrainTimeout  = 3 * time.Second
)

// EventBus decouples event publication from delivery. Publish only enqueues,
// so it is safe to call while the order-processing lock is held; Run delivers
// each event to every sink in order.
type EventBus struct {
	logger      ports.Logger
	sinks       []ports.EventPublisher
	queue       chan domain.Event
	sinkTimeout time.Duration
	dropped     atomic.Int64
}

// NewEventBus creates a bus delivering to sinks. Nil sinks are skipped.
func NewEventBus(logger ports.Logger, buffer int, sinks ...ports.EventPublisher) *EventBus {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	b := &EventBus{
		logger:      logger,
		queue:       make(chan domain.Event, buffer),
		sinkTimeout: defaultSinkTimeout,
	}
	for _, s := range sinks {
		if s != nil {
			b.sinks = append(b.sinks, s)
		}
	}
	return b
}

// Publish implements ports.EventPublisher. A full queue drops the event.
func (b *EventBus) Publish(ctx context.Context, evt domain.Event) error {
	select {
	case b.queue <- evt:
	default:
		b.dropped.Add(1)
		metrics.EventsDropped.Inc()
		b.logger.Warn(ctx, "Event queue full, dropping event", map[string]interface{}{"type": evt.Type})
	}
	return nil
}

// Dropped returns how many events were discarded on a full queue.
func (b *EventBus) Dropped() int64 {
	return b.dropped.Load()
}

// Run delivers queued events until ctx is cancelled, then flushes what is
// still queued within a short grace period.
func (b *EventBus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			b.drain()
			return nil
		case evt := <-b.queue:
			b.deliver(ctx, evt)
		}
	}
}

func (b *EventBus) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), eventDrainTimeout)
	defer cancel()
	for {
		select {
		case evt := <-b.queue:
			b.deliver(ctx, evt)
		default:
			return
		}
	}
}

func (b *EventBus) deliver(ctx context.Context, evt domain.Event) {
	for _, sink := range b.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, b.sinkTimeout)
		err := sink.Publish(sinkCtx, evt)
		cancel()
		if err != nil {
			b.logger.Warn(ctx, "Event delivery failed", map[string]interface{}{"type": evt.Type, "error": err.Error()})
		}
	}
}
