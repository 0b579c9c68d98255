package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/aether-ai/conductor/cmd/workflowd/container"
	"github.com/aether-ai/conductor/common/models"
	"github.com/aether-ai/conductor/common/template"
)

// TemplateHandler handles workflow template requests
type TemplateHandler struct {
	container *container.Container
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(c *container.Container) *TemplateHandler {
	return &TemplateHandler{container: c}
}

// GetTemplate retrieves a template by ID
// GET /api/v1/templates/:id
func (h *TemplateHandler) GetTemplate(c echo.Context) error {
	if h.container.TemplateRepo == nil {
		return persistenceDisabled(c)
	}

	tpl, err := h.container.TemplateRepo.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "template not found",
		})
	}

	return c.JSON(http.StatusOK, tpl)
}

// ListTemplates lists templates in a category ordered by usage
// GET /api/v1/templates?category=...&limit=20
func (h *TemplateHandler) ListTemplates(c echo.Context) error {
	if h.container.TemplateRepo == nil {
		return persistenceDisabled(c)
	}

	category := models.TemplateCategory(c.QueryParam("category"))
	if category == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "category is required",
		})
	}

	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	tpls, err := h.container.TemplateRepo.ListByCategory(c.Request().Context(), category, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to list templates",
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"templates": tpls,
		"count":     len(tpls),
	})
}

// PreviewTemplate compiles a template without executing it, returning
// the materialized graph. Useful for editors rendering what a template
// expands to under a given parameter overlay.
// POST /api/v1/templates/:id/preview
func (h *TemplateHandler) PreviewTemplate(c echo.Context) error {
	if h.container.TemplateRepo == nil {
		return persistenceDisabled(c)
	}

	var body struct {
		Params map[string]any `json:"params,omitempty"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	tpl, err := h.container.TemplateRepo.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "template not found",
		})
	}

	compiled, err := template.Compile(tpl, body.Params)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"nodes":        compiled.Workflow.Nodes,
		"edges":        compiled.Workflow.Edges,
		"capabilities": compiled.Capabilities,
		"params":       compiled.Params,
	})
}
