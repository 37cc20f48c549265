package domain

// SubmitMessageRequest is the inbound delivery-channel request.
type SubmitMessageRequest struct {
	ChannelID string   `json:"channel_id"`
	UserID    string   `json:"user_id"`
	Text      string   `json:"text"`
	Persona   string   `json:"persona,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// SubmitMessageResponse carries the delivered answer back to the channel.
type SubmitMessageResponse struct {
	TurnID string     `json:"turn_id"`
	Status TurnStatus `json:"status"`
	Answer string     `json:"answer"`
}

// ConfirmationDecisionRequest is the external approve/deny signal for a
// confirmation-gated tool call.
type ConfirmationDecisionRequest struct {
	Decision  string `json:"decision"` // approve | deny
	DecidedBy string `json:"decided_by,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
