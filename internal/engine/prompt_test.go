package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/aios-native/orchestrator/domain"
	"github.com/aios-native/orchestrator/internal/backend"
)

func TestBuildInitialPromptOrdering(t *testing.T) {
	history := []domain.ConversationRecord{
		{Input: "newest question", Output: "newest answer", CreatedAt: time.Now()},
		{Input: "older question", Output: "older answer", CreatedAt: time.Now().Add(-time.Hour)},
	}
	msg := domain.Message{UserID: "u1", Text: "current question"}

	messages := buildInitialPrompt("be helpful", history, nil, msg)

	if messages[0].Role != "system" || messages[0].Content != "be helpful" {
		t.Fatalf("unexpected system message: %+v", messages[0])
	}
	// History is chronological: the older exchange comes first.
	if messages[1].Content != "older question" || messages[2].Content != "older answer" {
		t.Fatalf("history not chronological: %+v", messages)
	}
	if messages[3].Content != "newest question" || messages[4].Content != "newest answer" {
		t.Fatalf("history not chronological: %+v", messages)
	}
	last := messages[len(messages)-1]
	if last.Role != "user" || last.Content != "current question" {
		t.Fatalf("message text not last: %+v", last)
	}
}

func TestBuildInitialPromptSnippets(t *testing.T) {
	msg := domain.Message{UserID: "u1", Text: "q"}

	messages := buildInitialPrompt("base", nil, []string{"snippet one", "snippet two"}, msg)

	system := messages[0].Content
	if !strings.Contains(system, "base") {
		t.Fatalf("persona prompt missing: %q", system)
	}
	if !strings.Contains(system, "snippet one") || !strings.Contains(system, "snippet two") {
		t.Fatalf("snippets missing: %q", system)
	}
}

func TestAppendRoundMessages(t *testing.T) {
	base := []backend.ChatMessage{{Role: "system", Content: "s"}}
	calls := []backend.RequestedCall{
		{CallID: "tc1", Name: "files.read"},
		{CallID: "tc2", Name: "terminal.execute"},
	}
	results := []domain.ToolResult{
		{CallID: "tc1", ToolName: "files.read", Status: domain.ToolResultOK, Output: "contents"},
		{CallID: "tc2", ToolName: "terminal.execute", Status: domain.ToolResultDenied, Error: "denied by policy"},
	}

	messages := appendRoundMessages(base, calls, results)
	if len(messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(messages))
	}
	if messages[1].Role != "assistant" || len(messages[1].ToolCalls) != 2 {
		t.Fatalf("assistant tool request missing: %+v", messages[1])
	}
	if messages[2].Content != "contents" || messages[2].ToolCallID != "tc1" {
		t.Fatalf("unexpected ok result message: %+v", messages[2])
	}
	if !strings.Contains(messages[3].Content, "denied") {
		t.Fatalf("denied result not surfaced: %+v", messages[3])
	}
}
