package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ReloadPolicy re-reads the policy document and swaps in a new snapshot.
// In-flight turns keep the snapshot they started with.
// POST /v1/policy/reload
func (h *Handler) ReloadPolicy(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.policies.Reload(ctx); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
