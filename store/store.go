// Package store defines the storage interface and implementations.
package store

import (
	"context"

	"github.com/aios-native/orchestrator/domain"
)

// Store defines the interface for turn-engine persistence.
type Store interface {
	// Turn operations
	CreateTurn(ctx context.Context, turn *domain.Turn) error
	GetTurn(ctx context.Context, turnID string) (*domain.Turn, error)
	UpdateTurnStatus(ctx context.Context, turnID string, status domain.TurnStatus) error
	UpdateTurnCompleted(ctx context.Context, turnID string, status domain.TurnStatus, reason domain.FailReason, finalAnswer string, errData []byte) error

	// Round and tool-call trace
	CreateRound(ctx context.Context, round *domain.Round) error
	GetRounds(ctx context.Context, turnID string) ([]domain.Round, error)
	CreateToolCall(ctx context.Context, call *domain.ToolCall, result *domain.ToolResult) error
	GetToolCalls(ctx context.Context, turnID string) ([]domain.ToolCall, []domain.ToolResult, error)

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, turnID string, afterTs int64, types []string, limit int) ([]domain.Event, error)

	// Conversation records: append-only, newest-first reads
	AppendConversationRecord(ctx context.Context, record *domain.ConversationRecord) error
	ListConversationRecords(ctx context.Context, userID string, limit int) ([]domain.ConversationRecord, error)

	// Lifecycle
	Close() error
}
