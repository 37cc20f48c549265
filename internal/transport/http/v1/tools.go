package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ListTools lists the registered tools with their parameter schemas.
// GET /v1/tools
func (h *Handler) ListTools(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"tools": h.registry.Definitions(),
	})
}
