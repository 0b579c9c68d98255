package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aether-ai/conductor/cmd/workflowd/container"
	"github.com/aether-ai/conductor/cmd/workflowd/routes"
	"github.com/aether-ai/conductor/common/bootstrap"
	custommw "github.com/aether-ai/conductor/common/middleware"
	"github.com/aether-ai/conductor/common/ratelimit"
	"github.com/aether-ai/conductor/common/server"
	"github.com/aether-ai/conductor/common/telemetry"
)

func main() {
	ctx := context.Background()

	components, err := bootstrap.Setup(ctx, "workflowd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap workflowd: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	serviceContainer, err := container.New(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	if components.Config.Service.Environment == "development" {
		telemetry.NewDebug(6060, components.Logger).Start()
	}

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, components)
	setupMetrics(e, components)
	setupRateLimits(e, serviceContainer)
	registerRoutes(e, serviceContainer)

	startServer(e, components)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "workflowd",
		})
	})
}

// setupMetrics exposes the Prometheus scrape endpoint when enabled
func setupMetrics(e *echo.Echo, components *bootstrap.Components) {
	if components.Config.Features.EnablePrometheus {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}
}

// setupRateLimits applies Redis-backed rate limiting when Redis is up
func setupRateLimits(e *echo.Echo, serviceContainer *container.Container) {
	if serviceContainer.Limiter == nil {
		return
	}
	e.Use(custommw.GlobalRateLimit(serviceContainer.Limiter, ratelimit.DefaultGlobal.Limit))
	e.Use(custommw.UserRateLimit(serviceContainer.Limiter, ratelimit.DefaultTierConfigs[ratelimit.TierStandard].Limit))
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterExecutionRoutes(e, serviceContainer)
	routes.RegisterWorkflowRoutes(e, serviceContainer)
	routes.RegisterDefinitionRoutes(e, serviceContainer)
	routes.RegisterTemplateRoutes(e, serviceContainer)
}

// startServer runs the Echo server with graceful shutdown
func startServer(e *echo.Echo, components *bootstrap.Components) {
	srv := server.New(
		"workflowd",
		components.Config.Service.Port,
		e,
		components.Logger,
	)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
