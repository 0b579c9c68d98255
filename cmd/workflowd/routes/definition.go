package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/aether-ai/conductor/cmd/workflowd/container"
	"github.com/aether-ai/conductor/cmd/workflowd/handlers"
)

// RegisterDefinitionRoutes registers stored definition routes
func RegisterDefinitionRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewDefinitionHandler(c)

	definitions := e.Group("/api/v1/definitions")
	{
		definitions.POST("", h.CreateDefinition)       // POST   /api/v1/definitions
		definitions.GET("", h.ListDefinitions)         // GET    /api/v1/definitions?owner_id=...
		definitions.GET("/:id", h.GetDefinition)       // GET    /api/v1/definitions/{id}
		definitions.DELETE("/:id", h.DeleteDefinition) // DELETE /api/v1/definitions/{id}
	}
}
