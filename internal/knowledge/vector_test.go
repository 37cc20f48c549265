package knowledge

import (
	"context"
	"math"
	"strings"
	"testing"

	chromem "github.com/philippgille/chromem-go"
)

// stubEmbedding maps text onto a fixed vocabulary so similarity is
// deterministic and needs no external embedding service.
func stubEmbedding() chromem.EmbeddingFunc {
	vocab := []string{"deploy", "database", "weather", "coffee"}
	return func(ctx context.Context, text string) ([]float32, error) {
		lower := strings.ToLower(text)
		vec := make([]float32, len(vocab)+1)
		vec[len(vocab)] = 0.1 // avoid zero vectors
		for i, word := range vocab {
			vec[i] = float32(strings.Count(lower, word))
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
		return vec, nil
	}
}

func TestSearchRanksRelevantFirst(t *testing.T) {
	s := NewInMemory(stubEmbedding())
	ctx := context.Background()

	docs := map[string]string{
		"r1": "how do I deploy the service to production",
		"r2": "the database migration failed last night",
		"r3": "what is the weather like today",
	}
	for id, content := range docs {
		if err := s.Index(ctx, "u1", id, content); err != nil {
			t.Fatalf("Index failed: %v", err)
		}
	}

	snippets, err := s.Search(ctx, "u1", "deploy deploy deploy", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(snippets) != 2 {
		t.Fatalf("expected 2 snippets, got %d", len(snippets))
	}
	if snippets[0].ID != "r1" {
		t.Fatalf("expected r1 first, got %+v", snippets)
	}
}

func TestSearchEmptyCollection(t *testing.T) {
	s := NewInMemory(stubEmbedding())

	snippets, err := s.Search(context.Background(), "nobody", "anything", 4)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(snippets) != 0 {
		t.Fatalf("expected no snippets, got %d", len(snippets))
	}
}

func TestSearchClampsK(t *testing.T) {
	s := NewInMemory(stubEmbedding())
	ctx := context.Background()

	if err := s.Index(ctx, "u1", "r1", "coffee order"); err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	snippets, err := s.Search(ctx, "u1", "coffee", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(snippets) != 1 {
		t.Fatalf("expected 1 snippet, got %d", len(snippets))
	}
}

func TestCollectionsAreIsolatedPerUser(t *testing.T) {
	s := NewInMemory(stubEmbedding())
	ctx := context.Background()

	if err := s.Index(ctx, "u1", "r1", "coffee order for alice"); err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	snippets, err := s.Search(ctx, "u2", "coffee", 4)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(snippets) != 0 {
		t.Fatalf("expected isolation between users, got %+v", snippets)
	}
}

func TestPersistentStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir, stubEmbedding())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()
	if err := s.Index(ctx, "u1", "r1", "database backup schedule"); err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	reopened, err := New(dir, stubEmbedding())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	snippets, err := reopened.Search(ctx, "u1", "database", 4)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(snippets) != 1 || snippets[0].ID != "r1" {
		t.Fatalf("expected persisted snippet, got %+v", snippets)
	}
}
