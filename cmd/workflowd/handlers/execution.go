package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/aether-ai/conductor/cmd/workflowd/container"
	"github.com/aether-ai/conductor/common/capability"
	"github.com/aether-ai/conductor/common/engine"
	"github.com/aether-ai/conductor/common/graph"
	"github.com/aether-ai/conductor/common/provider"
	"github.com/aether-ai/conductor/common/werrors"
)

// ExecutionHandler handles execution requests
type ExecutionHandler struct {
	container *container.Container
}

// NewExecutionHandler creates a new execution handler
func NewExecutionHandler(c *container.Container) *ExecutionHandler {
	return &ExecutionHandler{container: c}
}

// ExecuteRequest is the request body for POST /api/v1/executions.
// Exactly one of template_id, definition_id, or nodes selects the graph.
type ExecuteRequest struct {
	TemplateID   string `json:"template_id,omitempty"`
	DefinitionID string `json:"definition_id,omitempty"`

	Nodes        []graph.Node    `json:"nodes,omitempty"`
	Edges        []graph.Edge    `json:"edges,omitempty"`
	Capabilities *capability.Set `json:"capabilities,omitempty"`

	Params  map[string]any     `json:"params,omitempty"`
	Message string             `json:"message"`
	History []provider.Message `json:"history,omitempty"`

	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Execute runs a workflow to completion and returns the assembled result
// POST /api/v1/executions
func (h *ExecutionHandler) Execute(c echo.Context) error {
	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	result, err := h.container.Engine.Execute(c.Request().Context(), engine.Request{
		TemplateID:     req.TemplateID,
		DefinitionID:   req.DefinitionID,
		Nodes:          req.Nodes,
		Edges:          req.Edges,
		Capabilities:   req.Capabilities,
		Params:         req.Params,
		Message:        req.Message,
		History:        req.History,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		switch werrors.KindOf(err) {
		case werrors.KindValidation:
			return c.JSON(http.StatusUnprocessableEntity, result.APIResponse())
		case werrors.KindPreparation, werrors.KindTemplate:
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": err.Error(),
			})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": err.Error(),
			})
		}
	}

	return c.JSON(http.StatusOK, result.APIResponse())
}

// GetExecution retrieves a persisted execution record
// GET /api/v1/executions/:id
func (h *ExecutionHandler) GetExecution(c echo.Context) error {
	if h.container.ExecutionRepo == nil {
		return persistenceDisabled(c)
	}

	rec, err := h.container.ExecutionRepo.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "execution not found",
		})
	}

	return c.JSON(http.StatusOK, rec)
}

// ListExecutions lists recent executions for an owner
// GET /api/v1/executions?owner_id=...&limit=20
func (h *ExecutionHandler) ListExecutions(c echo.Context) error {
	if h.container.ExecutionRepo == nil {
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

	recs, err := h.container.ExecutionRepo.ListByOwner(c.Request().Context(), ownerID, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to list executions",
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"executions": recs,
		"count":      len(recs),
	})
}

// GetExecutionLogs returns the buffered debug log lines for an execution
// GET /api/v1/executions/:id/logs
func (h *ExecutionHandler) GetExecutionLogs(c echo.Context) error {
	id := c.Param("id")
	logs := h.container.Logging.Logs(id)

	return c.JSON(http.StatusOK, map[string]any{
		"execution_id": id,
		"logs":         logs,
	})
}

func persistenceDisabled(c echo.Context) error {
	return c.JSON(http.StatusServiceUnavailable, map[string]string{
		"error": "persistence is disabled",
	})
}
