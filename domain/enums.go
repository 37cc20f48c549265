// Package domain defines the core domain models for the turn engine.
package domain

// TurnStatus represents the status of a turn.
type TurnStatus string

const (
	TurnStatusPending   TurnStatus = "PENDING"
	TurnStatusRunning   TurnStatus = "RUNNING"
	TurnStatusCompleted TurnStatus = "COMPLETED"
	TurnStatusFailed    TurnStatus = "FAILED"
	TurnStatusCancelled TurnStatus = "CANCELLED"
)

// IsTerminal reports whether the turn can no longer transition.
func (s TurnStatus) IsTerminal() bool {
	switch s {
	case TurnStatusCompleted, TurnStatusFailed, TurnStatusCancelled:
		return true
	}
	return false
}

// FailReason classifies why a turn ended in TurnStatusFailed.
type FailReason string

const (
	FailReasonBackendUnavailable FailReason = "backend_unavailable"
	FailReasonBackendInvalid     FailReason = "backend_invalid"
	FailReasonRoundLimitExceeded FailReason = "round_limit_exceeded"
	FailReasonTurnTimeout        FailReason = "turn_timeout"
)

// ToolResultStatus represents the outcome of a single tool call.
type ToolResultStatus string

const (
	ToolResultOK      ToolResultStatus = "ok"
	ToolResultError   ToolResultStatus = "error"
	ToolResultTimeout ToolResultStatus = "timeout"
	ToolResultDenied  ToolResultStatus = "denied"
)

// EventType represents the type of a trace event.
type EventType string

const (
	EventTypeTurnStarted          EventType = "turn_started"
	EventTypeRoundStarted         EventType = "round_started"
	EventTypeBackendCallDone      EventType = "backend_call_done"
	EventTypeToolRequested        EventType = "tool_requested"
	EventTypeToolResult           EventType = "tool_result"
	EventTypeConfirmationRequired EventType = "confirmation_required"
	EventTypeConfirmationDecision EventType = "confirmation_decision"
	EventTypeTurnCompleted        EventType = "turn_completed"
	EventTypeTurnFailed           EventType = "turn_failed"
	EventTypeTurnCancelled        EventType = "turn_cancelled"
)
