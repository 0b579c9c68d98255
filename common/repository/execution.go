package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aether-ai/conductor/common/db"
	"github.com/aether-ai/conductor/common/models"
)

// ExecutionRepository handles database operations for execution records
type ExecutionRepository struct {
	db *db.DB
}

// NewExecutionRepository creates a new execution repository
func NewExecutionRepository(database *db.DB) *ExecutionRepository {
	return &ExecutionRepository{db: database}
}

// StartExecution records the execution as running, inserting the row on
// first sight. A pending row created out of band is promoted in place;
// a row already past pending is left alone.
func (r *ExecutionRepository) StartExecution(ctx context.Context, rec *models.ExecutionRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid execution record: %w", err)
	}

	query := `
		INSERT INTO execution_records
			(id, owner_id, definition_id, template_id, status, started_at, tokens_used, cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, started_at = EXCLUDED.started_at
		WHERE execution_records.status = $9
	`

	_, err := r.db.Exec(
		ctx,
		query,
		rec.ID,
		rec.OwnerID,
		rec.DefinitionID,
		rec.TemplateID,
		models.StatusRunning,
		rec.StartedAt,
		rec.TokensUsed,
		rec.Cost,
		models.StatusPending,
	)

	if err != nil {
		return fmt.Errorf("failed to start execution record: %w", err)
	}

	return nil
}

// GetByID retrieves an execution record by its ID
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	query := `
		SELECT id, owner_id, definition_id, template_id, status,
		       started_at, completed_at, tokens_used, cost,
		       execution_time_ms, error_message
		FROM execution_records
		WHERE id = $1
	`

	rec := &models.ExecutionRecord{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&rec.ID,
		&rec.OwnerID,
		&rec.DefinitionID,
		&rec.TemplateID,
		&rec.Status,
		&rec.StartedAt,
		&rec.CompletedAt,
		&rec.TokensUsed,
		&rec.Cost,
		&rec.ExecutionTimeMS,
		&rec.ErrorMessage,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get execution record: %w", err)
	}

	return rec, nil
}

// CompleteExecution writes the terminal completed state with accounting
// and, when the run came from a template, bumps that template's usage
// statistics in the same transaction so a partial write cannot skew the
// running averages. An already-terminal record is left untouched.
func (r *ExecutionRepository) CompleteExecution(ctx context.Context, id string, completedAt time.Time, tokensUsed int64, cost float64, executionTimeMS int64, templateID string) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE execution_records
			SET status = $2, completed_at = $3, tokens_used = $4, cost = $5, execution_time_ms = $6
			WHERE id = $1 AND status NOT IN ($7, $8, $9)
		`, id,
			models.StatusCompleted, completedAt, tokensUsed, cost, executionTimeMS,
			models.StatusCompleted, models.StatusFailed, models.StatusCancelled,
		)
		if err != nil {
			return fmt.Errorf("failed to mark execution completed: %w", err)
		}
		if tag.RowsAffected() == 0 || templateID == "" {
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE workflow_templates
			SET usage_count = usage_count + 1,
			    total_tokens_used = total_tokens_used + $2,
			    total_cost = total_cost + $3,
			    success_rate = (success_rate * usage_count + 1.0) / (usage_count + 1),
			    updated_at = now()
			WHERE id = $1
		`, templateID, tokensUsed, cost)
		return err
	})
}

// FailExecution writes a terminal failed or cancelled state with the
// error. An already-terminal record is left untouched.
func (r *ExecutionRepository) FailExecution(ctx context.Context, id string, status models.ExecutionStatus, completedAt time.Time, errorMessage string) error {
	if !status.Terminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}

	query := `
		UPDATE execution_records
		SET status = $2, completed_at = $3, error_message = $4
		WHERE id = $1 AND status NOT IN ($5, $6, $7)
	`

	_, err := r.db.Exec(ctx, query, id, status, completedAt, errorMessage,
		models.StatusCompleted, models.StatusFailed, models.StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("failed to mark execution failed: %w", err)
	}

	return nil
}

// AddUsage accumulates running token and cost totals mid-execution
func (r *ExecutionRepository) AddUsage(ctx context.Context, id string, deltaTokens int64, deltaCost float64) error {
	query := `
		UPDATE execution_records
		SET tokens_used = tokens_used + $2, cost = cost + $3
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, id, deltaTokens, deltaCost)
	if err != nil {
		return fmt.Errorf("failed to add execution usage: %w", err)
	}

	return nil
}

// ListByOwner retrieves recent executions for an owner
func (r *ExecutionRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*models.ExecutionRecord, error) {
	query := `
		SELECT id, owner_id, definition_id, template_id, status,
		       started_at, completed_at, tokens_used, cost,
		       execution_time_ms, error_message
		FROM execution_records
		WHERE owner_id = $1
		ORDER BY started_at DESC NULLS LAST
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution records: %w", err)
	}
	defer rows.Close()

	var records []*models.ExecutionRecord
	for rows.Next() {
		rec := &models.ExecutionRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.OwnerID,
			&rec.DefinitionID,
			&rec.TemplateID,
			&rec.Status,
			&rec.StartedAt,
			&rec.CompletedAt,
			&rec.TokensUsed,
			&rec.Cost,
			&rec.ExecutionTimeMS,
			&rec.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
