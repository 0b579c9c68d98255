package models

import (
	"fmt"
	"time"

	"github.com/aether-ai/conductor/common/capability"
	"github.com/aether-ai/conductor/common/graph"
)

// WorkflowDefinition is a stored custom node/edge graph with its
// capability set. Unlike templates, definitions carry the full graph;
// nothing is compiled at execution time.
// Maps to: workflow_definitions table.
type WorkflowDefinition struct {
	ID          string `db:"id" json:"id"`
	OwnerID     string `db:"owner_id" json:"owner_id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description,omitempty"`

	Nodes        []graph.Node   `db:"nodes" json:"nodes"`
	Edges        []graph.Edge   `db:"edges" json:"edges"`
	Capabilities capability.Set `db:"capabilities" json:"capabilities"`

	Version   int       `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Validate enforces definition invariants before writes
func (d *WorkflowDefinition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("definition id must be non-empty")
	}
	if d.OwnerID == "" {
		return fmt.Errorf("definition owner_id must be non-empty")
	}
	if d.Name == "" {
		return fmt.Errorf("definition name must be non-empty")
	}
	if len(d.Nodes) == 0 {
		return fmt.Errorf("definition must contain at least one node")
	}
	return nil
}

// Workflow returns a fresh graph for execution. Definitions are shared;
// the engine mutates compiled state, so callers never execute the
// stored slices directly.
func (d *WorkflowDefinition) Workflow() *graph.Workflow {
	nodes := make([]graph.Node, len(d.Nodes))
	copy(nodes, d.Nodes)
	edges := make([]graph.Edge, len(d.Edges))
	copy(edges, d.Edges)
	return &graph.Workflow{Nodes: nodes, Edges: edges}
}
