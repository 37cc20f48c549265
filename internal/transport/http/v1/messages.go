package v1

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/aios-native/orchestrator/domain"
)

// SubmitMessage accepts an inbound user message and runs one full turn.
// The call blocks until the turn reaches a terminal state.
// POST /v1/messages
func (h *Handler) SubmitMessage(c echo.Context) error {
	var req domain.SubmitMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if req.ChannelID == "" || req.UserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "channel_id and user_id are required"})
	}
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text is required"})
	}

	msg := domain.Message{
		MessageID:  "msg_" + uuid.New().String()[:8],
		ChannelID:  req.ChannelID,
		UserID:     req.UserID,
		Text:       req.Text,
		Confidence: req.Confidence,
		ReceivedAt: time.Now(),
	}

	ctx := c.Request().Context()

	turn, err := h.engine.RunTurn(ctx, msg, req.Persona)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, domain.SubmitMessageResponse{
		TurnID: turn.TurnID,
		Status: turn.Status,
		Answer: turn.FinalAnswer,
	})
}
