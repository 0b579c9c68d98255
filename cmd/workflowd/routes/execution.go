package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/aether-ai/conductor/cmd/workflowd/container"
	"github.com/aether-ai/conductor/cmd/workflowd/handlers"
)

// RegisterExecutionRoutes registers execution routes
func RegisterExecutionRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewExecutionHandler(c)

	executions := e.Group("/api/v1/executions")
	{
		executions.POST("", h.Execute)              // POST /api/v1/executions
		executions.GET("", h.ListExecutions)        // GET  /api/v1/executions?owner_id=...
		executions.GET("/:id", h.GetExecution)      // GET  /api/v1/executions/{id}
		executions.GET("/:id/logs", h.GetExecutionLogs) // GET /api/v1/executions/{id}/logs
	}
}
