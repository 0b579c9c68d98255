package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/aether-ai/conductor/cmd/workflowd/container"
	"github.com/aether-ai/conductor/cmd/workflowd/handlers"
)

// RegisterWorkflowRoutes registers validation and catalog routes
func RegisterWorkflowRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewWorkflowHandler(c)

	e.POST("/api/v1/workflows/validate", h.Validate)
	e.GET("/api/v1/node-types", h.ListNodeTypes)
}
