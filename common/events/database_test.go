package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aether-ai/conductor/common/logger"
	"github.com/aether-ai/conductor/common/models"
)

// memoryStore mirrors the repository's transition guards over a map
type memoryStore struct {
	mu          sync.Mutex
	starts      int
	usageWrites int
	recs        map[string]*models.ExecutionRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{recs: map[string]*models.ExecutionRecord{}}
}

func (s *memoryStore) StartExecution(ctx context.Context, rec *models.ExecutionRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	if existing, ok := s.recs[rec.ID]; ok {
		if existing.Status == models.StatusPending {
			existing.Status = models.StatusRunning
			existing.StartedAt = rec.StartedAt
		}
		return nil
	}
	clone := *rec
	s.recs[rec.ID] = &clone
	return nil
}

func (s *memoryStore) CompleteExecution(ctx context.Context, id string, completedAt time.Time, tokensUsed int64, cost float64, executionTimeMS int64, templateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok || rec.Status.Terminal() {
		return nil
	}
	rec.Status = models.StatusCompleted
	rec.CompletedAt = &completedAt
	rec.TokensUsed = tokensUsed
	rec.Cost = cost
	rec.ExecutionTimeMS = &executionTimeMS
	return nil
}

func (s *memoryStore) FailExecution(ctx context.Context, id string, status models.ExecutionStatus, completedAt time.Time, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok || rec.Status.Terminal() {
		return nil
	}
	rec.Status = status
	rec.CompletedAt = &completedAt
	rec.ErrorMessage = &errorMessage
	return nil
}

func (s *memoryStore) AddUsage(ctx context.Context, id string, deltaTokens int64, deltaCost float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usageWrites++
	if rec, ok := s.recs[id]; ok {
		rec.TokensUsed += deltaTokens
		rec.Cost += deltaCost
	}
	return nil
}

func (s *memoryStore) record(id string) *models.ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recs[id]
}

func newDatabaseTestBus(t *testing.T) (*Bus, *memoryStore) {
	t.Helper()
	log := logger.New("error", "json")
	bus := NewBus(log)
	store := newMemoryStore()
	NewDatabaseSubscriber(store, log).Attach(bus)
	return bus, store
}

func TestDatabaseSubscriber_StartedCreatesSingleRecord(t *testing.T) {
	bus, store := newDatabaseTestBus(t)
	ctx := context.Background()

	bus.Publish(ctx, New(Started, "x1", "u1", "", map[string]any{"template_id": "tpl-1"}))
	bus.Publish(ctx, New(TokenUsage, "x1", "u1", "", map[string]any{"delta_tokens": 15, "delta_cost": 0.001}))
	bus.Publish(ctx, New(ExecutionCompleted, "x1", "u1", "", map[string]any{
		"template_id": "tpl-1", "tokens_used": 15, "cost": 0.001, "execution_time_ms": 12,
	}))

	store.mu.Lock()
	total := len(store.recs)
	starts := store.starts
	store.mu.Unlock()
	require.Equal(t, 1, total, "one execution must leave exactly one record")
	assert.Equal(t, 1, starts)

	rec := store.record("x1")
	require.NotNil(t, rec)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, "u1", rec.OwnerID)
	require.NotNil(t, rec.TemplateID)
	assert.Equal(t, "tpl-1", *rec.TemplateID)
	assert.Equal(t, int64(15), rec.TokensUsed)
	require.NotNil(t, rec.StartedAt)
	require.NotNil(t, rec.CompletedAt)
}

func TestDatabaseSubscriber_FailureIsTerminal(t *testing.T) {
	bus, store := newDatabaseTestBus(t)
	ctx := context.Background()

	bus.Publish(ctx, New(Started, "x2", "u1", "", nil))
	bus.Publish(ctx, New(ExecutionFailed, "x2", "u1", "", map[string]any{
		"error": "execution cancelled", "error_type": "cancelled",
	}))

	rec := store.record("x2")
	require.NotNil(t, rec)
	assert.Equal(t, models.StatusCancelled, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	assert.Equal(t, "execution cancelled", *rec.ErrorMessage)

	// A second terminal write must not overwrite the first
	bus.Publish(ctx, New(ExecutionFailed, "x2", "u1", "", map[string]any{
		"error": "late duplicate", "error_type": "runtime",
	}))
	assert.Equal(t, models.StatusCancelled, store.record("x2").Status)
}

func TestDatabaseSubscriber_ZeroUsageDeltaSkipsWrite(t *testing.T) {
	bus, store := newDatabaseTestBus(t)
	ctx := context.Background()

	bus.Publish(ctx, New(Started, "x3", "u1", "", nil))
	bus.Publish(ctx, New(TokenUsage, "x3", "u1", "", map[string]any{"delta_tokens": 0, "delta_cost": 0.0}))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Zero(t, store.usageWrites, "a zero delta must not reach the store")
}
