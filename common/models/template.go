package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aether-ai/conductor/common/capability"
)

// TemplateCategory groups templates for discovery
type TemplateCategory string

const (
	CategoryGeneral         TemplateCategory = "general"
	CategoryCustomerSupport TemplateCategory = "customer_support"
	CategoryProgramming     TemplateCategory = "programming"
	CategoryResearch        TemplateCategory = "research"
	CategoryDataAnalysis    TemplateCategory = "data_analysis"
	CategoryCreative        TemplateCategory = "creative"
	CategoryEducational     TemplateCategory = "educational"
	CategoryBusiness        TemplateCategory = "business"
	CategoryCustom          TemplateCategory = "custom"
)

// WorkflowTemplate is a stored, parameterized workflow description.
// Maps to: workflow_templates table. Read-only to the engine.
type WorkflowTemplate struct {
	ID           string                    `db:"id" json:"id"`
	Name         string                    `db:"name" json:"name"`
	Description  string                    `db:"description" json:"description"`
	WorkflowType capability.WorkflowType   `db:"workflow_type" json:"workflow_type"`
	Category     TemplateCategory          `db:"category" json:"category"`

	DefaultParams      map[string]any `db:"default_params" json:"default_params"`
	RequiredTools      []string       `db:"required_tools" json:"required_tools,omitempty"`
	RequiredRetrievers []string       `db:"required_retrievers" json:"required_retrievers,omitempty"`

	IsBuiltin  bool   `db:"is_builtin" json:"is_builtin"`
	Version    int    `db:"version" json:"version"`
	ConfigHash string `db:"config_hash" json:"config_hash"`

	// Usage statistics maintained by the template repository
	UsageCount        int64      `db:"usage_count" json:"usage_count"`
	TotalTokensUsed   int64      `db:"total_tokens_used" json:"total_tokens_used"`
	TotalCost         float64    `db:"total_cost" json:"total_cost"`
	SuccessRate       float64    `db:"success_rate" json:"success_rate"`
	AvgResponseTimeMS *float64   `db:"avg_response_time_ms" json:"avg_response_time_ms,omitempty"`
	Rating            float64    `db:"rating" json:"rating"`
	RatingCount       int64      `db:"rating_count" json:"rating_count"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Validate enforces the table's integrity constraints before writes
func (t *WorkflowTemplate) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("template name must be non-empty")
	}
	if t.Version < 1 {
		return fmt.Errorf("template version must be >= 1, got %d", t.Version)
	}
	if t.Rating < 0 || t.Rating > 5 {
		return fmt.Errorf("template rating must be in [0,5], got %f", t.Rating)
	}
	if t.RatingCount < 0 || t.UsageCount < 0 || t.TotalTokensUsed < 0 {
		return fmt.Errorf("template counters must be non-negative")
	}
	if t.TotalCost < 0 {
		return fmt.Errorf("template total_cost must be non-negative")
	}
	if t.SuccessRate < 0 || t.SuccessRate > 1 {
		return fmt.Errorf("template success_rate must be in [0,1], got %f", t.SuccessRate)
	}
	if t.AvgResponseTimeMS != nil && *t.AvgResponseTimeMS <= 0 {
		return fmt.Errorf("template avg_response_time_ms must be positive when set")
	}
	return nil
}

// Capabilities derives the effective capability set for this template
func (t *WorkflowTemplate) Capabilities() capability.Set {
	derived := capability.FromTemplateConfiguration(t.RequiredTools, t.RequiredRetrievers)
	preset := capability.FromWorkflowType(t.WorkflowType)
	return preset.MergeWith(derived)
}

// ComputeConfigHash returns the 64-hex SHA-256 of the template's
// canonical configuration. Key order is fixed so the hash is stable.
func (t *WorkflowTemplate) ComputeConfigHash() string {
	canonical := map[string]any{
		"name":                t.Name,
		"workflow_type":       t.WorkflowType,
		"default_params":      canonicalMap(t.DefaultParams),
		"required_tools":      sortedCopy(t.RequiredTools),
		"required_retrievers": sortedCopy(t.RequiredRetrievers),
		"version":             t.Version,
	}

	raw, _ := json.Marshal(canonical)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// canonicalMap re-marshals a map so encoding/json's sorted-key output is
// deterministic regardless of how the map was built.
func canonicalMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
