package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aether-ai/conductor/common/db"
	"github.com/aether-ai/conductor/common/models"
)

// TemplateRepository handles database operations for workflow templates
type TemplateRepository struct {
	db *db.DB
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(database *db.DB) *TemplateRepository {
	return &TemplateRepository{db: database}
}

const templateColumns = `
	id, name, description, workflow_type, category,
	default_params, required_tools, required_retrievers,
	is_builtin, version, config_hash,
	usage_count, total_tokens_used, total_cost, success_rate,
	avg_response_time_ms, rating, rating_count,
	created_at, updated_at
`

// GetByID retrieves a template by its ID
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM workflow_templates WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

// GetBuiltinByName retrieves a builtin template by name
func (r *TemplateRepository) GetBuiltinByName(ctx context.Context, name string) (*models.WorkflowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM workflow_templates WHERE name = $1 AND is_builtin = true`
	return r.scanOne(ctx, query, name)
}

// ListByCategory retrieves templates in a category ordered by usage
func (r *TemplateRepository) ListByCategory(ctx context.Context, category models.TemplateCategory, limit int) ([]*models.WorkflowTemplate, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM workflow_templates
		WHERE category = $1
		ORDER BY usage_count DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, category, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.WorkflowTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}

	return templates, rows.Err()
}

// RecordUsage bumps usage statistics after an execution. Success rate is
// maintained as a running average over usage_count.
func (r *TemplateRepository) RecordUsage(ctx context.Context, id string, tokensUsed int64, cost float64, succeeded bool, responseTimeMS int64) error {
	success := 0.0
	if succeeded {
		success = 1.0
	}

	query := `
		UPDATE workflow_templates
		SET usage_count = usage_count + 1,
		    total_tokens_used = total_tokens_used + $2,
		    total_cost = total_cost + $3,
		    success_rate = (success_rate * usage_count + $4) / (usage_count + 1),
		    avg_response_time_ms = CASE
		        WHEN avg_response_time_ms IS NULL THEN $5
		        ELSE (avg_response_time_ms * usage_count + $5) / (usage_count + 1)
		    END,
		    updated_at = now()
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, id, tokensUsed, cost, success, responseTimeMS)
	if err != nil {
		return fmt.Errorf("failed to record template usage: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *TemplateRepository) scanOne(ctx context.Context, query string, arg any) (*models.WorkflowTemplate, error) {
	row := r.db.QueryRow(ctx, query, arg)
	tpl, err := scanTemplate(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tpl, nil
}

func scanTemplate(row rowScanner) (*models.WorkflowTemplate, error) {
	tpl := &models.WorkflowTemplate{}
	var defaultParams []byte

	err := row.Scan(
		&tpl.ID,
		&tpl.Name,
		&tpl.Description,
		&tpl.WorkflowType,
		&tpl.Category,
		&defaultParams,
		&tpl.RequiredTools,
		&tpl.RequiredRetrievers,
		&tpl.IsBuiltin,
		&tpl.Version,
		&tpl.ConfigHash,
		&tpl.UsageCount,
		&tpl.TotalTokensUsed,
		&tpl.TotalCost,
		&tpl.SuccessRate,
		&tpl.AvgResponseTimeMS,
		&tpl.Rating,
		&tpl.RatingCount,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	if len(defaultParams) > 0 {
		if err := json.Unmarshal(defaultParams, &tpl.DefaultParams); err != nil {
			return nil, fmt.Errorf("failed to decode template params: %w", err)
		}
	}

	return tpl, nil
}
