// Package v1 provides HTTP handlers for the turn engine API.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aios-native/orchestrator/internal/engine"
	"github.com/aios-native/orchestrator/internal/tools"
	"github.com/aios-native/orchestrator/policy"
	"github.com/aios-native/orchestrator/store"
)

// Handler handles HTTP requests.
type Handler struct {
	engine   *engine.Engine
	store    store.Store
	registry *tools.Registry
	policies *policy.Store
}

// NewHandler creates a new handler.
func NewHandler(eng *engine.Engine, st store.Store, registry *tools.Registry, policies *policy.Store) *Handler {
	return &Handler{
		engine:   eng,
		store:    st,
		registry: registry,
		policies: policies,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Message intake
	e.POST("/v1/messages", h.SubmitMessage)

	// Turn inspection and control
	e.GET("/v1/turns/:turn_id", h.GetTurn)
	e.GET("/v1/turns/:turn_id/events", h.GetTurnEvents)
	e.POST("/v1/turns/:turn_id/cancel", h.CancelTurn)
	e.POST("/v1/turns/:turn_id/confirmations/:call_id", h.SubmitConfirmation)

	// Conversation history
	e.GET("/v1/users/:user_id/records", h.ListRecords)

	// Tool registry
	e.GET("/v1/tools", h.ListTools)

	// Policy administration
	e.POST("/v1/policy/reload", h.ReloadPolicy)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
