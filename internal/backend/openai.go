package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPBackend talks to an OpenAI-compatible chat-completions endpoint
// (vLLM, Ollama, LiteLLM and similar all expose this surface).
type HTTPBackend struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
}

// NewHTTPBackend creates a backend client for the given endpoint and model.
func NewHTTPBackend(baseURL, apiKey, model string, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		temperature: 0.8,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Ensure HTTPBackend implements the Backend interface.
var _ Backend = (*HTTPBackend)(nil)

// chatCompletionRequest is the OpenAI chat completion request.
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	Tools       []wireTool    `json:"tools,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireTool struct {
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  interface{} `json:"parameters,omitempty"`
}

type wireToolCall struct {
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Function wireToolCallFunction `json:"function"`
}

type wireToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   *Usage       `json:"usage,omitempty"`
}

type wireChoice struct {
	Index        int          `json:"index"`
	Message      *wireMessage `json:"message,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

type errorResponse struct {
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// Infer sends one chat completion request and normalizes the result.
func (b *HTTPBackend) Infer(ctx context.Context, req InferRequest) (*Response, error) {
	wireReq := chatCompletionRequest{
		Model:       b.model,
		Temperature: &b.temperature,
		Messages:    toWireMessages(req.Messages),
		Tools:       toWireTools(req.Tools),
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		detail := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != nil {
			detail = errResp.Error.Message
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, detail)
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrInvalidResponse, resp.StatusCode, detail)
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message == nil {
		return nil, fmt.Errorf("%w: no choices in completion", ErrInvalidResponse)
	}

	choice := completion.Choices[0]
	out := &Response{Usage: completion.Usage}

	if len(choice.Message.ToolCalls) > 0 {
		for _, tc := range choice.Message.ToolCalls {
			args := json.RawMessage(`{}`)
			if tc.Function.Arguments != "" {
				if !json.Valid([]byte(tc.Function.Arguments)) {
					return nil, fmt.Errorf("%w: tool call %s has malformed arguments", ErrInvalidResponse, tc.ID)
				}
				args = json.RawMessage(tc.Function.Arguments)
			}
			if tc.Function.Name == "" {
				return nil, fmt.Errorf("%w: tool call %s has no name", ErrInvalidResponse, tc.ID)
			}
			out.ToolCalls = append(out.ToolCalls, RequestedCall{
				CallID: tc.ID,
				Name:   tc.Function.Name,
				Args:   args,
			})
		}
		return out, nil
	}

	// A tool_calls finish reason with zero calls is the backend's explicit
	// "need more rounds" signal; anything else is a final answer.
	if choice.FinishReason == "tool_calls" {
		out.Continue = true
		return out, nil
	}

	out.FinalAnswer = choice.Message.Content
	return out, nil
}

func toWireMessages(in []ChatMessage) []wireMessage {
	out := make([]wireMessage, 0, len(in))
	for _, m := range in {
		wm := wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.CallID,
				Type: "function",
				Function: wireToolCallFunction{
					Name:      tc.Name,
					Arguments: string(tc.Args),
				},
			})
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(in []ToolDefinition) []wireTool {
	if len(in) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(in))
	for _, t := range in {
		out = append(out, wireTool{
			Type: "function",
			Function: wireToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}
