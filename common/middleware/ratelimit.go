// Package middleware holds shared Echo middleware.
package middleware

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/aether-ai/conductor/common/ratelimit"
)

// isInternalRequest reports whether the request comes from another
// service. Internal callers set X-Internal-Service to the shared
// secret and bypass rate limits.
func isInternalRequest(c echo.Context) bool {
	header := c.Request().Header.Get("X-Internal-Service")
	if header == "" {
		return false
	}

	secret := os.Getenv("INTERNAL_SERVICE_SECRET")
	if secret == "" {
		return false
	}

	return header == secret
}

// GlobalRateLimit caps total throughput across all callers. Limiter
// errors fail open: availability over strictness.
func GlobalRateLimit(limiter *ratelimit.Limiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isInternalRequest(c) {
				return next(c)
			}

			result, err := limiter.CheckGlobal(c.Request().Context(), limit)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"error":   "global_rate_limit_exceeded",
					"message": "Service is experiencing high load. Please try again later.",
					"details": map[string]any{
						"limit":               result.Limit,
						"window":              "60 seconds",
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}

// UserRateLimit caps per-user throughput. The user is identified by
// the X-User-ID header; requests without one pass through and are
// covered by the global limit only.
func UserRateLimit(limiter *ratelimit.Limiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isInternalRequest(c) {
				return next(c)
			}

			userID := c.Request().Header.Get("X-User-ID")
			if userID == "" {
				return next(c)
			}

			result, err := limiter.CheckUser(c.Request().Context(), userID, limit, 60)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"error":   "user_rate_limit_exceeded",
					"message": "You have exceeded your execution quota. Please wait before trying again.",
					"details": map[string]any{
						"user_id":             userID,
						"limit":               result.Limit,
						"window":              "60 seconds",
						"current_count":       result.CurrentCount,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}
