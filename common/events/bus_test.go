package events

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aether-ai/conductor/common/logger"
)

func newTestBus() *Bus {
	return NewBus(logger.New("error", "json"))
}

func TestBus_TypedBeforeGlobalInRegistrationOrder(t *testing.T) {
	bus := newTestBus()

	var order []string
	bus.Subscribe(NodeExecuted, func(ctx context.Context, e Event) error {
		order = append(order, "typed-1")
		return nil
	})
	bus.SubscribeAll(func(ctx context.Context, e Event) error {
		order = append(order, "global-1")
		return nil
	})
	bus.Subscribe(NodeExecuted, func(ctx context.Context, e Event) error {
		order = append(order, "typed-2")
		return nil
	})
	bus.SubscribeAll(func(ctx context.Context, e Event) error {
		order = append(order, "global-2")
		return nil
	})

	bus.Publish(context.Background(), New(NodeExecuted, "x1", "u1", "", nil))

	assert.Equal(t, []string{"typed-1", "typed-2", "global-1", "global-2"}, order)
}

func TestBus_HandlerErrorNeverReachesPublisher(t *testing.T) {
	bus := newTestBus()

	bus.Subscribe(Started, func(ctx context.Context, e Event) error {
		return fmt.Errorf("subscriber exploded")
	})

	var delivered bool
	bus.SubscribeAll(func(ctx context.Context, e Event) error {
		delivered = true
		return nil
	})

	// Must not panic and must still deliver to later handlers
	bus.Publish(context.Background(), New(Started, "x1", "u1", "", nil))
	assert.True(t, delivered)
}

func TestBus_HandlerPanicIsContained(t *testing.T) {
	bus := newTestBus()

	bus.Subscribe(Started, func(ctx context.Context, e Event) error {
		panic("boom")
	})

	var delivered bool
	bus.Subscribe(Started, func(ctx context.Context, e Event) error {
		delivered = true
		return nil
	})

	require.NotPanics(t, func() {
		bus.Publish(context.Background(), New(Started, "x1", "u1", "", nil))
	})
	assert.True(t, delivered)
}

func TestBus_TypeFiltering(t *testing.T) {
	bus := newTestBus()

	var got []Type
	bus.Subscribe(ToolCalled, func(ctx context.Context, e Event) error {
		got = append(got, e.Type)
		return nil
	})

	bus.Publish(context.Background(), New(Started, "x1", "u1", "", nil))
	bus.Publish(context.Background(), New(ToolCalled, "x1", "u1", "", nil))
	bus.Publish(context.Background(), New(TokenUsage, "x1", "u1", "", nil))

	assert.Equal(t, []Type{ToolCalled}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := newTestBus()

	var count int
	sub := bus.Subscribe(Started, func(ctx context.Context, e Event) error {
		count++
		return nil
	})

	bus.Publish(context.Background(), New(Started, "x1", "u1", "", nil))
	bus.Unsubscribe(sub)
	bus.Publish(context.Background(), New(Started, "x2", "u1", "", nil))

	assert.Equal(t, 1, count)
}

func TestDefault_LazyAndResettable(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	first := Default()
	require.NotNil(t, first)
	assert.Same(t, first, Default())

	Reset()
	assert.NotSame(t, first, Default())
}

func TestMetricsSubscriber_Counters(t *testing.T) {
	bus := newTestBus()
	metrics := NewMetricsSubscriber(nil)
	metrics.Attach(bus)

	ctx := context.Background()
	bus.Publish(ctx, New(Started, "x1", "u1", "", nil))
	bus.Publish(ctx, New(ToolCalled, "x1", "u1", "", nil))
	bus.Publish(ctx, New(ToolCalled, "x1", "u1", "", nil))
	bus.Publish(ctx, New(TokenUsage, "x1", "u1", "", map[string]any{
		"delta_tokens": 42, "delta_cost": 0.01,
	}))
	bus.Publish(ctx, New(ExecutionCompleted, "x1", "u1", "", nil))

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.TotalExecutions)
	assert.Equal(t, int64(0), snap.Running)
	assert.Equal(t, int64(1), snap.Completed)
	assert.Equal(t, int64(2), snap.ToolCalls)
	assert.Equal(t, int64(42), snap.TotalTokens)
	assert.InDelta(t, 0.01, snap.TotalCost, 1e-9)
}

func TestMetricsSubscriber_CancelledVsFailed(t *testing.T) {
	bus := newTestBus()
	metrics := NewMetricsSubscriber(nil)
	metrics.Attach(bus)

	ctx := context.Background()
	bus.Publish(ctx, New(Started, "x1", "u1", "", nil))
	bus.Publish(ctx, New(ExecutionFailed, "x1", "u1", "", map[string]any{"error_type": "cancelled"}))
	bus.Publish(ctx, New(Started, "x2", "u1", "", nil))
	bus.Publish(ctx, New(ExecutionFailed, "x2", "u1", "", map[string]any{"error_type": "runtime"}))

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.Cancelled)
	assert.Equal(t, int64(1), snap.Failed)
}

func TestLoggingSubscriber_CapAndClear(t *testing.T) {
	bus := newTestBus()
	logging := NewLoggingSubscriber(2, logger.New("error", "json"))
	logging.Attach(bus)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		bus.Publish(ctx, New(NodeExecuted, "x1", "u1", "", map[string]any{"node_id": "llm"}))
	}

	assert.Len(t, logging.Logs("x1"), 2)
	assert.Contains(t, logging.Logs("x1")[0], "NODE_EXECUTED")
	assert.Contains(t, logging.Logs("x1")[0], "node=llm")

	logging.Clear("x1")
	assert.Empty(t, logging.Logs("x1"))
}
