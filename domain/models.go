package domain

import (
	"encoding/json"
	"time"
)

// Message is a normalized unit of user input. Immutable once created.
type Message struct {
	MessageID  string          `json:"message_id"`
	ChannelID  string          `json:"channel_id"`
	UserID     string          `json:"user_id"`
	Text       string          `json:"text"`
	Image      []byte          `json:"image,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"` // audio-derived STT confidence
	ReceivedAt time.Time       `json:"received_at"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// Turn is one complete processing cycle for a Message.
type Turn struct {
	TurnID      string          `json:"turn_id"`
	MessageID   string          `json:"message_id"`
	ChannelID   string          `json:"channel_id"`
	UserID      string          `json:"user_id"`
	Persona     string          `json:"persona,omitempty"`
	Status      TurnStatus      `json:"status"`
	FailReason  FailReason      `json:"fail_reason,omitempty"`
	FinalAnswer string          `json:"final_answer,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
	Error       json.RawMessage `json:"error,omitempty"`
}

// Round is one inference-and-optional-tool-execution cycle within a turn.
type Round struct {
	TurnID     string       `json:"turn_id"`
	Index      int          `json:"index"`
	Prompt     string       `json:"prompt,omitempty"` // prompt snapshot sent to the backend
	FinalText  string       `json:"final_text,omitempty"`
	ToolCalls  []ToolCall   `json:"tool_calls,omitempty"`
	Results    []ToolResult `json:"results,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// ToolCall is an invocation requested by the backend within a round.
type ToolCall struct {
	CallID      string          `json:"call_id"`
	TurnID      string          `json:"turn_id"`
	RoundIndex  int             `json:"round_index"`
	ToolName    string          `json:"tool_name"`
	Args        json.RawMessage `json:"args,omitempty"`
	RequestedAt time.Time       `json:"requested_at"`
}

// ToolResult is the outcome of executing a ToolCall. Every call produced in a
// round has exactly one result before the round is closed.
type ToolResult struct {
	CallID   string           `json:"call_id"`
	ToolName string           `json:"tool_name"`
	Status   ToolResultStatus `json:"status"`
	Output   string           `json:"output,omitempty"`
	Error    string           `json:"error,omitempty"`
	Duration time.Duration    `json:"duration_ms"`
}

// ConversationRecord is the persisted summary of a completed turn.
// Append-only; never mutated after creation.
type ConversationRecord struct {
	RecordID  string    `json:"record_id"`
	TurnID    string    `json:"turn_id"`
	UserID    string    `json:"user_id"`
	ChannelID string    `json:"channel_id"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Tags      string    `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is a trace event recorded during a turn, for replay and debugging.
type Event struct {
	EventID string          `json:"event_id"`
	TurnID  string          `json:"turn_id"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
