package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/aether-ai/conductor/cmd/workflowd/container"
	"github.com/aether-ai/conductor/common/capability"
	"github.com/aether-ai/conductor/common/graph"
	"github.com/aether-ai/conductor/common/models"
)

// DefinitionHandler handles stored workflow definition requests
type DefinitionHandler struct {
	container *container.Container
}

// NewDefinitionHandler creates a new definition handler
func NewDefinitionHandler(c *container.Container) *DefinitionHandler {
	return &DefinitionHandler{container: c}
}

// CreateDefinitionRequest is the request body for POST /api/v1/definitions
type CreateDefinitionRequest struct {
	OwnerID      string         `json:"owner_id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Nodes        []graph.Node   `json:"nodes"`
	Edges        []graph.Edge   `json:"edges"`
	Capabilities capability.Set `json:"capabilities"`
}

// CreateDefinition validates and stores a custom workflow graph.
// Invalid graphs are rejected here so execution never sees them.
// POST /api/v1/definitions
func (h *DefinitionHandler) CreateDefinition(c echo.Context) error {
	if h.container.DefinitionRepo == nil {
		return persistenceDisabled(c)
	}

	var req CreateDefinitionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	caps := req.Capabilities.Normalize()
	wf := &graph.Workflow{Nodes: req.Nodes, Edges: req.Edges}
	report := h.container.Engine.Validate(wf, caps)
	if !report.Valid() {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{
			"error":  "workflow validation failed",
			"errors": report.AllErrors(),
			"report": report,
		})
	}

	def := &models.WorkflowDefinition{
		ID:           uuid.Must(uuid.NewV7()).String(),
		OwnerID:      req.OwnerID,
		Name:         req.Name,
		Description:  req.Description,
		Nodes:        req.Nodes,
		Edges:        req.Edges,
		Capabilities: caps,
		Version:      1,
	}

	if err := h.container.DefinitionRepo.Create(c.Request().Context(), def); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusCreated, def)
}

// GetDefinition retrieves a stored definition
// GET /api/v1/definitions/:id
func (h *DefinitionHandler) GetDefinition(c echo.Context) error {
	if h.container.DefinitionRepo == nil {
		return persistenceDisabled(c)
	}

	def, err := h.container.DefinitionRepo.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "definition not found",
		})
	}

	return c.JSON(http.StatusOK, def)
}

// ListDefinitions lists definitions for an owner, newest first
// GET /api/v1/definitions?owner_id=...&limit=20
func (h *DefinitionHandler) ListDefinitions(c echo.Context) error {
	if h.container.DefinitionRepo == nil {
		return persistenceDisabled(c)
	}

	ownerID := c.QueryParam("owner_id")
	if ownerID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "owner_id is required",
		})
	}

	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	defs, err := h.container.DefinitionRepo.ListByOwner(c.Request().Context(), ownerID, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to list definitions",
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"definitions": defs,
		"count":       len(defs),
	})
}

// DeleteDefinition removes a stored definition
// DELETE /api/v1/definitions/:id
func (h *DefinitionHandler) DeleteDefinition(c echo.Context) error {
	if h.container.DefinitionRepo == nil {
		return persistenceDisabled(c)
	}

	if err := h.container.DefinitionRepo.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to delete definition",
		})
	}

	return c.NoContent(http.StatusNoContent)
}
