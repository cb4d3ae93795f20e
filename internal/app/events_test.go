package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoRiskEngine/internal/domain"
)

func TestEventBus_DeliversToEverySink(t *testing.T) {
	log := &mockLogger{}
	first := &mockPublisher{}
	failing := &mockPublisher{err: errors.New("redis down")}
	bus := NewEventBus(log, 8, first, nil, failing)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bus.Run(ctx) }()

	require.NoError(t, bus.Publish(ctx, domain.Event{Type: domain.EventOrderFilled}))
	require.NoError(t, bus.Publish(ctx, domain.Event{Type: domain.EventPositionOpened}))

	assert.Eventually(t, func() bool {
		return first.count(domain.EventOrderFilled) == 1 && failing.count(domain.EventPositionOpened) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	log.mu.Lock()
	defer log.mu.Unlock()
	assert.Contains(t, log.warnMsgs, "Event delivery failed")
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := NewEventBus(&mockLogger{}, 1, &mockPublisher{})

	require.NoError(t, bus.Publish(context.Background(), domain.Event{Type: domain.EventDailyReset}))
	require.NoError(t, bus.Publish(context.Background(), domain.Event{Type: domain.EventDailyReset}))
	assert.Equal(t, int64(1), bus.Dropped())
}

func TestEventBus_DrainsOnShutdown(t *testing.T) {
	sink := &mockPublisher{}
	bus := NewEventBus(&mockLogger{}, 4, sink)
	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(context.Background(), domain.Event{Type: domain.EventHaltTriggered}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, bus.Run(ctx))
	assert.Equal(t, 3, sink.count(domain.EventHaltTriggered))
}
