package backend

import (
	"context"
	"sync"
)

// ScriptedBackend replays a fixed sequence of responses or errors. It is the
// test double for the engine: deterministic, records every request it saw.
type ScriptedBackend struct {
	mu       sync.Mutex
	steps    []ScriptStep
	next     int
	Requests []InferRequest
}

// ScriptStep is one scripted Infer outcome.
type ScriptStep struct {
	Response *Response
	Err      error
}

// NewScriptedBackend builds a backend that returns the given steps in order.
// Once the script is exhausted the last step repeats.
func NewScriptedBackend(steps ...ScriptStep) *ScriptedBackend {
	return &ScriptedBackend{steps: steps}
}

// Ensure ScriptedBackend implements the Backend interface.
var _ Backend = (*ScriptedBackend)(nil)

// Infer returns the next scripted step.
func (s *ScriptedBackend) Infer(ctx context.Context, req InferRequest) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests = append(s.Requests, req)
	if len(s.steps) == 0 {
		return &Response{FinalAnswer: "scripted backend has no steps"}, nil
	}
	step := s.steps[s.next]
	if s.next < len(s.steps)-1 {
		s.next++
	}
	if step.Err != nil {
		return nil, step.Err
	}
	resp := *step.Response
	return &resp, nil
}

// CallCount reports how many Infer calls were made.
func (s *ScriptedBackend) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

// FinalStep is a convenience constructor for a final-answer step.
func FinalStep(text string) ScriptStep {
	return ScriptStep{Response: &Response{FinalAnswer: text}}
}

// ToolStep is a convenience constructor for a tool-request step.
func ToolStep(calls ...RequestedCall) ScriptStep {
	return ScriptStep{Response: &Response{ToolCalls: calls}}
}

// ErrStep is a convenience constructor for a failing step.
func ErrStep(err error) ScriptStep {
	return ScriptStep{Err: err}
}
