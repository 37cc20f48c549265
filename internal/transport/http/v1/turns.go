package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// GetTurn retrieves a turn by id.
// GET /v1/turns/:turn_id
func (h *Handler) GetTurn(c echo.Context) error {
	turnID := c.Param("turn_id")
	ctx := c.Request().Context()

	turn, err := h.store.GetTurn(ctx, turnID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if turn == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "turn not found"})
	}

	return c.JSON(http.StatusOK, turn)
}

// GetTurnEvents retrieves the event trace for a turn.
// GET /v1/turns/:turn_id/events
func (h *Handler) GetTurnEvents(c echo.Context) error {
	turnID := c.Param("turn_id")
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	afterTs := int64(0)
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			afterTs = val
		}
	}
	var types []string
	if t := c.QueryParam("types"); t != "" {
		types = strings.Split(t, ",")
	}

	ctx := c.Request().Context()

	events, err := h.store.GetEvents(ctx, turnID, afterTs, types, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

// CancelTurn cancels an in-flight turn.
// POST /v1/turns/:turn_id/cancel
func (h *Handler) CancelTurn(c echo.Context) error {
	turnID := c.Param("turn_id")

	if !h.engine.Cancel(turnID) {
		return c.JSON(http.StatusConflict, map[string]string{"error": "turn is not running"})
	}

	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
