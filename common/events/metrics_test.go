package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSubscriber_FailureBalancesRunningGauge(t *testing.T) {
	s := NewMetricsSubscriber(nil)
	ctx := context.Background()

	require.NoError(t, s.Handle(ctx, New(Started, "x1", "u1", "", nil)))
	require.NoError(t, s.Handle(ctx, New(ExecutionFailed, "x1", "u1", "", map[string]any{
		"error": "end node unreachable", "error_type": "validation",
	})))

	snap := s.Snapshot()
	assert.Equal(t, int64(1), snap.TotalExecutions)
	assert.Zero(t, snap.Running, "running gauge must return to zero after the terminal event")
	assert.Equal(t, int64(1), snap.Failed)
}
