package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aether-ai/conductor/common/capability"
	"github.com/aether-ai/conductor/common/db"
	"github.com/aether-ai/conductor/common/graph"
	"github.com/aether-ai/conductor/common/models"
)

// DefinitionRepository handles database operations for stored workflow
// definitions. Graphs and capability sets are stored as JSONB.
type DefinitionRepository struct {
	db *db.DB
}

// NewDefinitionRepository creates a new definition repository
func NewDefinitionRepository(database *db.DB) *DefinitionRepository {
	return &DefinitionRepository{db: database}
}

const definitionColumns = `
	id, owner_id, name, description,
	nodes, edges, capabilities,
	version, created_at, updated_at
`

// Create inserts a new definition
func (r *DefinitionRepository) Create(ctx context.Context, def *models.WorkflowDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid definition: %w", err)
	}

	nodes, err := json.Marshal(def.Nodes)
	if err != nil {
		return fmt.Errorf("failed to encode nodes: %w", err)
	}
	edges, err := json.Marshal(def.Edges)
	if err != nil {
		return fmt.Errorf("failed to encode edges: %w", err)
	}
	caps, err := json.Marshal(def.Capabilities)
	if err != nil {
		return fmt.Errorf("failed to encode capabilities: %w", err)
	}

	query := `
		INSERT INTO workflow_definitions (
			id, owner_id, name, description,
			nodes, edges, capabilities, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.Exec(ctx, query,
		def.ID, def.OwnerID, def.Name, def.Description,
		nodes, edges, caps, def.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create definition: %w", err)
	}

	return nil
}

// GetByID retrieves a definition by its ID
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE id = $1`

	row := r.db.QueryRow(ctx, query, id)
	def, err := scanDefinition(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}
	return def, nil
}

// ListByOwner retrieves definitions for an owner, newest first
func (r *DefinitionRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + definitionColumns + `
		FROM workflow_definitions
		WHERE owner_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	var defs []*models.WorkflowDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	return defs, rows.Err()
}

// Delete removes a definition
func (r *DefinitionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM workflow_definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete definition: %w", err)
	}
	return nil
}

// GetDefinition loads a definition as an executable graph plus its
// capability set. This satisfies the engine's definition source.
func (r *DefinitionRepository) GetDefinition(ctx context.Context, id string) (*graph.Workflow, capability.Set, error) {
	def, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, capability.Set{}, err
	}
	return def.Workflow(), def.Capabilities, nil
}

func scanDefinition(row rowScanner) (*models.WorkflowDefinition, error) {
	def := &models.WorkflowDefinition{}
	var nodes, edges, caps []byte

	err := row.Scan(
		&def.ID,
		&def.OwnerID,
		&def.Name,
		&def.Description,
		&nodes,
		&edges,
		&caps,
		&def.Version,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan definition: %w", err)
	}

	if err := json.Unmarshal(nodes, &def.Nodes); err != nil {
		return nil, fmt.Errorf("failed to decode nodes: %w", err)
	}
	if err := json.Unmarshal(edges, &def.Edges); err != nil {
		return nil, fmt.Errorf("failed to decode edges: %w", err)
	}
	if len(caps) > 0 {
		if err := json.Unmarshal(caps, &def.Capabilities); err != nil {
			return nil, fmt.Errorf("failed to decode capabilities: %w", err)
		}
	}

	return def, nil
}
