package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aether-ai/conductor/cmd/workflowd/container"
	"github.com/aether-ai/conductor/common/capability"
	"github.com/aether-ai/conductor/common/graph"
)

// WorkflowHandler handles graph validation and node catalog requests
type WorkflowHandler struct {
	container *container.Container
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(c *container.Container) *WorkflowHandler {
	return &WorkflowHandler{container: c}
}

// ValidateRequest is the request body for POST /api/v1/workflows/validate
type ValidateRequest struct {
	Nodes        []graph.Node    `json:"nodes"`
	Edges        []graph.Edge    `json:"edges"`
	Capabilities *capability.Set `json:"capabilities,omitempty"`
}

// Validate runs the four-layer validator without executing anything
// POST /api/v1/workflows/validate
func (h *WorkflowHandler) Validate(c echo.Context) error {
	var req ValidateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	caps := capability.FromWorkflowType(capability.TypePlain)
	if req.Capabilities != nil {
		caps = req.Capabilities.Normalize()
	}

	wf := &graph.Workflow{Nodes: req.Nodes, Edges: req.Edges}
	report := h.container.Engine.Validate(wf, caps)

	return c.JSON(http.StatusOK, map[string]any{
		"valid":  report.Valid(),
		"errors": report.AllErrors(),
		"report": report,
	})
}

// ListNodeTypes returns the node-kind catalog with per-kind properties
// GET /api/v1/node-types
func (h *WorkflowHandler) ListNodeTypes(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"node_types": h.container.Engine.ListNodeTypes(),
	})
}
