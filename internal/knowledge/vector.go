// Package knowledge wraps a chromem-go vector store with per-user
// collections for semantic lookup of past conversation.
package knowledge

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// Snippet is a single semantic-search hit.
type Snippet struct {
	ID      string
	Content string
	Score   float32
}

// Store wraps chromem-go with per-user collections and disk persistence.
type Store struct {
	mu      sync.RWMutex
	db      *chromem.DB
	embedFn chromem.EmbeddingFunc
}

// New creates (or opens) the persistent vector store at dataDir/knowledge/.
// embedFn is the embedding function; pass nil to use chromem's default.
func New(dataDir string, embedFn chromem.EmbeddingFunc) (*Store, error) {
	dir := filepath.Join(dataDir, "knowledge")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create knowledge dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}
	return &Store{db: db, embedFn: embedFn}, nil
}

// NewInMemory creates a throwaway store, used by tests and when persistence
// is disabled.
func NewInMemory(embedFn chromem.EmbeddingFunc) *Store {
	return &Store{db: chromem.NewDB(), embedFn: embedFn}
}

// collectionName returns the per-user collection name.
func collectionName(userID string) string {
	return fmt.Sprintf("user_%s_records", userID)
}

func (s *Store) getOrCreateCollection(userID string) *chromem.Collection {
	name := collectionName(userID)
	col := s.db.GetCollection(name, s.embedFn)
	if col == nil {
		var err error
		col, err = s.db.CreateCollection(name, nil, s.embedFn)
		if err != nil {
			log.Printf("ERROR: failed to create knowledge collection for %s: %v", userID, err)
			return nil
		}
	}
	return col
}

// Index adds (or re-adds) one record's text for a user.
func (s *Store) Index(ctx context.Context, userID, id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.getOrCreateCollection(userID)
	if col == nil {
		return fmt.Errorf("knowledge: nil collection for user %s", userID)
	}
	return col.AddDocument(ctx, chromem.Document{ID: id, Content: content})
}

// Search returns the top-k snippets most similar to the query.
func (s *Store) Search(ctx context.Context, userID, query string, k int) ([]Snippet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.getOrCreateCollection(userID)
	if col == nil {
		return nil, nil
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	var results []chromem.Result
	var err error

	// chromem-go sometimes rejects nResults despite the Count clamp.
	// Step down k if it fails.
	for attemptK := k; attemptK > 0; attemptK-- {
		results, err = col.Query(ctx, query, attemptK, nil, nil)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	out := make([]Snippet, 0, len(results))
	for _, r := range results {
		out = append(out, Snippet{
			ID:      r.ID,
			Content: r.Content,
			Score:   r.Similarity,
		})
	}
	return out, nil
}
