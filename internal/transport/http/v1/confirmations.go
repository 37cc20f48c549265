package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aios-native/orchestrator/domain"
	"github.com/aios-native/orchestrator/internal/engine"
)

// SubmitConfirmation delivers an approve or deny decision for a pending
// tool call confirmation.
// POST /v1/turns/:turn_id/confirmations/:call_id
func (h *Handler) SubmitConfirmation(c echo.Context) error {
	turnID := c.Param("turn_id")
	callID := c.Param("call_id")

	var req domain.ConfirmationDecisionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if req.Decision != "approve" && req.Decision != "deny" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "decision must be approve or deny"})
	}

	err := h.engine.Confirmations().Resolve(turnID, callID, engine.Decision{
		Approved:  req.Decision == "approve",
		DecidedBy: req.DecidedBy,
		Reason:    req.Reason,
	})
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no pending confirmation for this call"})
	}

	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
