package engine

import (
	"strings"

	"github.com/aios-native/orchestrator/domain"
	"github.com/aios-native/orchestrator/internal/backend"
)

// DefaultSystemPrompt is used when no persona matches.
const DefaultSystemPrompt = "You are a helpful assistant running on the user's machine. " +
	"Use the available tools when a request needs information from the system, " +
	"and answer directly when it does not. Keep answers short and concrete."

// buildInitialPrompt assembles the prompt context for round zero: persona
// instructions, retrieved knowledge, recent history (oldest first), then
// the message itself.
func buildInitialPrompt(systemPrompt string, history []domain.ConversationRecord, snippets []string, msg domain.Message) []backend.ChatMessage {
	system := systemPrompt
	if len(snippets) > 0 {
		var b strings.Builder
		b.WriteString(system)
		b.WriteString("\n\nRelevant context from past conversations:\n")
		for _, s := range snippets {
			b.WriteString("- ")
			b.WriteString(s)
			b.WriteString("\n")
		}
		system = strings.TrimRight(b.String(), "\n")
	}

	messages := []backend.ChatMessage{{Role: "system", Content: system}}

	// History arrives newest first; the prompt wants chronological order.
	for i := len(history) - 1; i >= 0; i-- {
		rec := history[i]
		if rec.Input != "" {
			messages = append(messages, backend.ChatMessage{Role: "user", Content: rec.Input})
		}
		if rec.Output != "" {
			messages = append(messages, backend.ChatMessage{Role: "assistant", Content: rec.Output})
		}
	}

	messages = append(messages, backend.ChatMessage{Role: "user", Content: msg.Text})
	return messages
}

// appendRoundMessages extends the prompt with the assistant's tool request
// and one tool message per result, keyed by call id.
func appendRoundMessages(messages []backend.ChatMessage, calls []backend.RequestedCall, results []domain.ToolResult) []backend.ChatMessage {
	messages = append(messages, backend.ChatMessage{
		Role:      "assistant",
		ToolCalls: calls,
	})
	for _, res := range results {
		content := res.Output
		if res.Status != domain.ToolResultOK {
			content = string(res.Status) + ": " + res.Error
		}
		messages = append(messages, backend.ChatMessage{
			Role:       "tool",
			Name:       res.ToolName,
			ToolCallID: res.CallID,
			Content:    content,
		})
	}
	return messages
}
