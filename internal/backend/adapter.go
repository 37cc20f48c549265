// Package backend is the narrow boundary to the external reasoning service.
// The engine depends only on the Backend contract, never on wire specifics.
package backend

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnavailable marks transport-level failures. Retryable.
var ErrUnavailable = errors.New("backend unavailable")

// ErrInvalidResponse marks contract violations in the backend output.
// Not retryable: a deterministic malformation will not heal on retry.
var ErrInvalidResponse = errors.New("backend returned invalid response")

// ToolDefinition declares a callable capability exposed to the backend.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ChatMessage is one prompt-context entry.
type ChatMessage struct {
	Role       string          `json:"role"` // system, user, assistant, tool
	Content    string          `json:"content"`
	Name       string          `json:"name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []RequestedCall `json:"tool_calls,omitempty"`
}

// RequestedCall is a tool invocation requested by the backend.
type RequestedCall struct {
	CallID string          `json:"call_id"`
	Name   string          `json:"name"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// InferRequest is the prompt context plus the tools the backend may request.
type InferRequest struct {
	Messages []ChatMessage
	Tools    []ToolDefinition
}

// Usage carries token accounting when the backend reports it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the tagged backend output: either a final answer, or a list of
// requested tool calls. Continue covers the legal "no answer yet, zero calls"
// case where the backend explicitly signals it needs another round.
type Response struct {
	FinalAnswer string
	ToolCalls   []RequestedCall
	Continue    bool
	Usage       *Usage
}

// IsFinal reports whether the response carries the turn's final answer.
func (r *Response) IsFinal() bool {
	return len(r.ToolCalls) == 0 && !r.Continue
}

// Backend produces responses that may include tool call requests.
// Implementations apply no business logic: allowing or denying a requested
// call is the turn engine's job.
type Backend interface {
	Infer(ctx context.Context, req InferRequest) (*Response, error)
}
