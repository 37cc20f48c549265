package policy

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// Limits are the compiled numeric limits of a snapshot.
type Limits struct {
	MaxRoundsPerTurn    int
	ToolTimeout         time.Duration
	ToolTimeouts        map[string]time.Duration
	ConfirmationTimeout time.Duration
	TurnTimeout         time.Duration
	RateWindow          time.Duration
	RateQuota           int
	HistoryLimit        int
	KnowledgeTopK       int
}

// Snapshot is one compiled, immutable policy. Turns hold the snapshot they
// started with; a reload never mutates it.
type Snapshot struct {
	doc    Document
	limits Limits
	engine *Engine
}

// Compile validates a document and prepares its rego query.
func Compile(ctx context.Context, doc Document) (*Snapshot, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	src := doc.Rego
	if src == "" {
		src = DefaultRego
	}
	engine, err := NewEngine(ctx, src, doc.rulesData())
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		doc:    doc,
		limits: doc.Limits.toLimits(),
		engine: engine,
	}, nil
}

// Decide evaluates the policy for one tool call. Fails closed: an evaluation
// error denies the call.
func (s *Snapshot) Decide(ctx context.Context, toolName string, args map[string]interface{}, userID string) Decision {
	if args == nil {
		args = map[string]interface{}{}
	}
	input := map[string]interface{}{
		"tool_name": toolName,
		"args":      args,
		"user_id":   userID,
	}
	decision, err := s.engine.Evaluate(ctx, input)
	if err != nil {
		log.Printf("WARN: policy evaluation failed for %s, denying: %v", toolName, err)
		return DecisionBlock
	}
	return decision
}

// IsToolAllowed reports whether the call may proceed at all.
func (s *Snapshot) IsToolAllowed(ctx context.Context, toolName string, args map[string]interface{}, userID string) bool {
	return s.Decide(ctx, toolName, args, userID) != DecisionBlock
}

// RequiresConfirmation reports whether the call needs an explicit user
// approval before execution, even when allowed.
func (s *Snapshot) RequiresConfirmation(ctx context.Context, toolName string, args map[string]interface{}, userID string) bool {
	return s.Decide(ctx, toolName, args, userID) == DecisionRequireConfirmation
}

// MaxRoundsPerTurn bounds the inference loop.
func (s *Snapshot) MaxRoundsPerTurn() int { return s.limits.MaxRoundsPerTurn }

// ToolTimeout returns the per-call execution budget for a tool.
func (s *Snapshot) ToolTimeout(toolName string) time.Duration {
	if d, ok := s.limits.ToolTimeouts[toolName]; ok {
		return d
	}
	return s.limits.ToolTimeout
}

// ConfirmationTimeout is how long a confirmation-gated call waits before
// being treated as denied.
func (s *Snapshot) ConfirmationTimeout() time.Duration { return s.limits.ConfirmationTimeout }

// TurnTimeout is the wall-clock budget for a whole turn.
func (s *Snapshot) TurnTimeout() time.Duration { return s.limits.TurnTimeout }

// RateLimit returns the inbound window and quota.
func (s *Snapshot) RateLimit() (time.Duration, int) {
	return s.limits.RateWindow, s.limits.RateQuota
}

// HistoryLimit is how many conversation records enrich a new turn.
func (s *Snapshot) HistoryLimit() int { return s.limits.HistoryLimit }

// KnowledgeTopK is how many knowledge snippets enrich a new turn.
func (s *Snapshot) KnowledgeTopK() int { return s.limits.KnowledgeTopK }

// Terminal exposes the terminal rules to the terminal capability.
func (s *Snapshot) Terminal() TerminalRules { return s.doc.Terminal }

// Files exposes the file rules to the files capabilities.
func (s *Snapshot) Files() FilesRules { return s.doc.Files }

// Store holds the active snapshot. Reload swaps the whole snapshot via a
// single pointer update; readers never block the swap.
type Store struct {
	current atomic.Pointer[Snapshot]
	path    string
}

// NewStore compiles the initial document. path may be empty when the
// document did not come from a file; Reload then recompiles the default.
func NewStore(ctx context.Context, doc Document, path string) (*Store, error) {
	snap, err := Compile(ctx, doc)
	if err != nil {
		return nil, err
	}
	st := &Store{path: path}
	st.current.Store(snap)
	return st, nil
}

// Current returns the active snapshot.
func (st *Store) Current() *Snapshot {
	return st.current.Load()
}

// Reload re-reads the configured policy file and swaps the snapshot
// atomically. On any error the previous snapshot stays active.
func (st *Store) Reload(ctx context.Context) error {
	doc := DefaultDocument()
	if st.path != "" {
		loaded, err := LoadDocument(st.path)
		if err != nil {
			return err
		}
		doc = loaded
	}
	snap, err := Compile(ctx, doc)
	if err != nil {
		return err
	}
	st.current.Store(snap)
	return nil
}

// Swap replaces the active snapshot with an already-compiled one.
func (st *Store) Swap(snap *Snapshot) {
	st.current.Store(snap)
}
