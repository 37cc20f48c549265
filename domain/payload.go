package domain

import "encoding/json"

// TurnStartedPayload is the payload for the turn_started event.
type TurnStartedPayload struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Persona   string `json:"persona,omitempty"`
}

// RoundStartedPayload is the payload for the round_started event.
type RoundStartedPayload struct {
	Index int `json:"index"`
}

// BackendCallDonePayload is the payload for the backend_call_done event.
type BackendCallDonePayload struct {
	RoundIndex       int    `json:"round_index"`
	LatencyMs        int64  `json:"latency_ms"`
	ToolCallCount    int    `json:"tool_call_count"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	Error            string `json:"error,omitempty"`
}

// ToolRequestedPayload is the payload for the tool_requested event.
type ToolRequestedPayload struct {
	CallID   string          `json:"call_id"`
	ToolName string          `json:"tool_name"`
	Args     json.RawMessage `json:"args,omitempty"`
}

// ToolResultPayload is the payload for the tool_result event.
type ToolResultPayload struct {
	CallID     string           `json:"call_id"`
	ToolName   string           `json:"tool_name"`
	Status     ToolResultStatus `json:"status"`
	DurationMs int64            `json:"duration_ms"`
	Error      string           `json:"error,omitempty"`
}

// ConfirmationRequiredPayload is the payload for the confirmation_required event.
type ConfirmationRequiredPayload struct {
	CallID      string          `json:"call_id"`
	ToolName    string          `json:"tool_name"`
	Args        json.RawMessage `json:"args,omitempty"`
	ArgsSummary string          `json:"args_summary,omitempty"`
	DeadlineTs  int64           `json:"deadline_ts"`
}

// ConfirmationDecisionPayload is the payload for the confirmation_decision event.
type ConfirmationDecisionPayload struct {
	CallID    string `json:"call_id"`
	Approved  bool   `json:"approved"`
	DecidedBy string `json:"decided_by,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// TurnCompletedPayload is the payload for the turn_completed event.
type TurnCompletedPayload struct {
	Rounds      int    `json:"rounds"`
	FinalAnswer string `json:"final_answer,omitempty"`
}

// TurnFailedPayload is the payload for the turn_failed event.
type TurnFailedPayload struct {
	Reason  FailReason `json:"reason"`
	Message string     `json:"message,omitempty"`
}
