package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/aether-ai/conductor/cmd/workflowd/container"
	"github.com/aether-ai/conductor/cmd/workflowd/handlers"
)

// RegisterTemplateRoutes registers template routes
func RegisterTemplateRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewTemplateHandler(c)

	templates := e.Group("/api/v1/templates")
	{
		templates.GET("", h.ListTemplates)              // GET  /api/v1/templates?category=...
		templates.GET("/:id", h.GetTemplate)            // GET  /api/v1/templates/{id}
		templates.POST("/:id/preview", h.PreviewTemplate) // POST /api/v1/templates/{id}/preview
	}
}
