// Package convctx supplies and stores the conversation state that enriches
// a turn. It never decides policy; it only moves data.
package convctx

import (
	"context"
	"log"
	"time"

	"github.com/aios-native/orchestrator/domain"
	"github.com/aios-native/orchestrator/internal/knowledge"
	"github.com/aios-native/orchestrator/store"
)

// DefaultAppendTimeout bounds how long a durable append may block a turn.
const DefaultAppendTimeout = 2 * time.Second

// Context provides history and knowledge reads plus best-effort appends.
type Context struct {
	store         store.Store
	knowledge     *knowledge.Store // nil disables semantic search
	appendTimeout time.Duration
}

// New creates a conversation context over the given store. kn may be nil.
func New(st store.Store, kn *knowledge.Store, appendTimeout time.Duration) *Context {
	if appendTimeout <= 0 {
		appendTimeout = DefaultAppendTimeout
	}
	return &Context{
		store:         st,
		knowledge:     kn,
		appendTimeout: appendTimeout,
	}
}

// RecentHistory returns up to limit records for a user, newest first.
// Empty history is not an error; a store failure degrades to empty.
func (c *Context) RecentHistory(ctx context.Context, userID string, limit int) []domain.ConversationRecord {
	records, err := c.store.ListConversationRecords(ctx, userID, limit)
	if err != nil {
		log.Printf("WARN: failed to load history for %s: %v", userID, err)
		return nil
	}
	return records
}

// RelevantKnowledge returns semantic-search snippets for the query.
// Collaborator unavailability degrades to empty rather than failing the turn.
func (c *Context) RelevantKnowledge(ctx context.Context, userID, query string, topK int) []string {
	if c.knowledge == nil || query == "" || topK <= 0 {
		return nil
	}
	snippets, err := c.knowledge.Search(ctx, userID, query, topK)
	if err != nil {
		log.Printf("WARN: knowledge search failed for %s: %v", userID, err)
		return nil
	}
	out := make([]string, 0, len(snippets))
	for _, s := range snippets {
		out = append(out, s.Content)
	}
	return out
}

// AppendRecord durably appends one record and indexes it for later search.
// Best effort: failures are logged, never surfaced to the user, and the
// write cannot block the caller past the append timeout. The append is
// detached from the turn's context so cancellation after completion does
// not lose the record.
func (c *Context) AppendRecord(record *domain.ConversationRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), c.appendTimeout)
	defer cancel()

	if err := c.store.AppendConversationRecord(ctx, record); err != nil {
		log.Printf("ERROR: failed to append conversation record %s: %v", record.RecordID, err)
	}

	if c.knowledge != nil && record.Input != "" {
		text := record.Input
		if record.Output != "" {
			text += "\n" + record.Output
		}
		if err := c.knowledge.Index(ctx, record.UserID, record.RecordID, text); err != nil {
			log.Printf("WARN: failed to index record %s: %v", record.RecordID, err)
		}
	}
}
