package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// ListRecords retrieves recent conversation records for a user, newest first.
// GET /v1/users/:user_id/records
func (h *Handler) ListRecords(c echo.Context) error {
	userID := c.Param("user_id")
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}

	ctx := c.Request().Context()

	records, err := h.store.ListConversationRecords(ctx, userID, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"records": records,
	})
}
