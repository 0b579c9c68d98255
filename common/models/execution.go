package models

import (
	"fmt"
	"time"
)

// ExecutionStatus is the lifecycle state of an execution record
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo enforces pending -> running -> terminal, no backward moves
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	if s == next {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusRunning || next.Terminal()
	case StatusRunning:
		return next.Terminal()
	default:
		return false
	}
}

// ExecutionRecord is one persisted workflow execution.
// Maps to: execution_records table.
type ExecutionRecord struct {
	ID           string          `db:"id" json:"id"`
	OwnerID      string          `db:"owner_id" json:"owner_id"`
	DefinitionID *string         `db:"definition_id" json:"definition_id,omitempty"`
	TemplateID   *string         `db:"template_id" json:"template_id,omitempty"`
	Status       ExecutionStatus `db:"status" json:"status"`

	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	TokensUsed      int64    `db:"tokens_used" json:"tokens_used"`
	Cost            float64  `db:"cost" json:"cost"`
	ExecutionTimeMS *int64   `db:"execution_time_ms" json:"execution_time_ms,omitempty"`
	ErrorMessage    *string  `db:"error_message" json:"error_message,omitempty"`
}

// Validate enforces record invariants before writes
func (r *ExecutionRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("execution record id must be non-empty")
	}
	if r.OwnerID == "" {
		return fmt.Errorf("execution record owner_id must be non-empty")
	}
	if r.TokensUsed < 0 {
		return fmt.Errorf("tokens_used must be non-negative")
	}
	if r.Cost < 0 {
		return fmt.Errorf("cost must be non-negative")
	}
	switch r.Status {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
	default:
		return fmt.Errorf("unknown execution status: %s", r.Status)
	}
	return nil
}
