package events

import (
	"context"
	"time"

	"github.com/aether-ai/conductor/common/logger"
	"github.com/aether-ai/conductor/common/models"
)

// ExecutionStore persists execution lifecycle transitions. The pgx
// implementation lives in common/repository.
type ExecutionStore interface {
	StartExecution(ctx context.Context, rec *models.ExecutionRecord) error
	CompleteExecution(ctx context.Context, id string, completedAt time.Time, tokensUsed int64, cost float64, executionTimeMS int64, templateID string) error
	FailExecution(ctx context.Context, id string, status models.ExecutionStatus, completedAt time.Time, errorMessage string) error
	AddUsage(ctx context.Context, id string, deltaTokens int64, deltaCost float64) error
}

// DatabaseSubscriber persists execution lifecycle into execution_records.
// Each handler is one short write; a failed write is logged by the bus
// without affecting delivery to other subscribers.
type DatabaseSubscriber struct {
	store ExecutionStore
	log   *logger.Logger
}

// NewDatabaseSubscriber creates the subscriber
func NewDatabaseSubscriber(store ExecutionStore, log *logger.Logger) *DatabaseSubscriber {
	return &DatabaseSubscriber{store: store, log: log}
}

// Attach registers the subscriber on the bus
func (s *DatabaseSubscriber) Attach(bus *Bus) {
	bus.Subscribe(Started, s.onStarted)
	bus.Subscribe(ExecutionCompleted, s.onCompleted)
	bus.Subscribe(ExecutionFailed, s.onFailed)
	bus.Subscribe(TokenUsage, s.onTokenUsage)
}

// onStarted materializes the execution record. STARTED is the first
// event of every execution, so this is where the row appears.
func (s *DatabaseSubscriber) onStarted(ctx context.Context, event Event) error {
	rec := &models.ExecutionRecord{
		ID:        event.ExecutionID,
		OwnerID:   event.UserID,
		Status:    models.StatusRunning,
		StartedAt: &event.Timestamp,
	}
	if id, _ := event.Data["template_id"].(string); id != "" {
		rec.TemplateID = &id
	}
	if id, _ := event.Data["definition_id"].(string); id != "" {
		rec.DefinitionID = &id
	}
	return s.store.StartExecution(ctx, rec)
}

func (s *DatabaseSubscriber) onCompleted(ctx context.Context, event Event) error {
	templateID, _ := event.Data["template_id"].(string)
	return s.store.CompleteExecution(ctx, event.ExecutionID, event.Timestamp,
		dataInt64(event.Data, "tokens_used"),
		dataFloat(event.Data, "cost"),
		dataInt64(event.Data, "execution_time_ms"),
		templateID,
	)
}

func (s *DatabaseSubscriber) onFailed(ctx context.Context, event Event) error {
	status := models.StatusFailed
	if kind, _ := event.Data["error_type"].(string); kind == "cancelled" {
		status = models.StatusCancelled
	}
	errorMessage, _ := event.Data["error"].(string)

	return s.store.FailExecution(ctx, event.ExecutionID, status, event.Timestamp, errorMessage)
}

func (s *DatabaseSubscriber) onTokenUsage(ctx context.Context, event Event) error {
	deltaTokens := dataInt64(event.Data, "delta_tokens")
	deltaCost := dataFloat(event.Data, "delta_cost")
	if deltaTokens == 0 && deltaCost == 0 {
		return nil
	}

	return s.store.AddUsage(ctx, event.ExecutionID, deltaTokens, deltaCost)
}

func dataInt64(data map[string]any, key string) int64 {
	switch v := data[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func dataFloat(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
