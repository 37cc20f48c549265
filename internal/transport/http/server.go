// Package http provides the HTTP server for the turn engine.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/aios-native/orchestrator/internal/engine"
	"github.com/aios-native/orchestrator/internal/tools"
	"github.com/aios-native/orchestrator/internal/transport/http/v1"
	"github.com/aios-native/orchestrator/policy"
	"github.com/aios-native/orchestrator/store"
)

// NewServer creates and configures the HTTP server.
func NewServer(eng *engine.Engine, st store.Store, registry *tools.Registry, policies *policy.Store) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(rateLimiter(policies))

	// Handlers
	v1Handler := v1.NewHandler(eng, st, registry, policies)
	v1Handler.RegisterRoutes(e)

	return e
}

// rateLimiter throttles clients per remote IP using the quota from the
// policy document in effect at startup.
func rateLimiter(policies *policy.Store) echo.MiddlewareFunc {
	window, quota := policies.Current().RateLimit()
	limit := rate.Limit(float64(quota) / window.Seconds())
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      limit,
			Burst:     quota,
			ExpiresIn: window,
		}),
	})
}
