// Package engine runs the bounded turn state machine: enrich, infer,
// execute tools, re-infer, finalize, persist.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aios-native/orchestrator/domain"
	"github.com/aios-native/orchestrator/internal/backend"
	"github.com/aios-native/orchestrator/internal/convctx"
	"github.com/aios-native/orchestrator/internal/tools"
	"github.com/aios-native/orchestrator/policy"
	"github.com/aios-native/orchestrator/store"
)

const (
	backendRetries   = 2
	baseRetryBackoff = 250 * time.Millisecond
)

// Fallback messages shown to the user on designed failure paths. Never a
// raw error code or stack trace.
var fallbackMessages = map[domain.FailReason]string{
	domain.FailReasonBackendUnavailable: "I'm having trouble reaching my reasoning service right now. Please try again in a moment.",
	domain.FailReasonBackendInvalid:     "I'm sorry, I received a response I couldn't make sense of. Please try again.",
	domain.FailReasonRoundLimitExceeded: "I could not complete that within the allowed steps.",
	domain.FailReasonTurnTimeout:        "That took longer than I'm allowed to spend on one request. Please try again.",
}

// FallbackMessage returns the user-visible text for a failure reason.
func FallbackMessage(reason domain.FailReason) string {
	if msg, ok := fallbackMessages[reason]; ok {
		return msg
	}
	return "Something went wrong while handling that request."
}

// Engine orchestrates turns. Turns for different users proceed fully in
// parallel; the only shared state is the read-only policy snapshot and the
// append-only store.
type Engine struct {
	store         store.Store
	conv          *convctx.Context
	policies      *policy.Store
	backend       backend.Backend
	registry      *tools.Registry
	invoker       *tools.Invoker
	confirmations *Confirmations
	personas      map[string]string

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// New creates a turn engine. personas maps persona names to system prompts;
// unknown personas fall back to DefaultSystemPrompt.
func New(st store.Store, conv *convctx.Context, policies *policy.Store, be backend.Backend, registry *tools.Registry, personas map[string]string) *Engine {
	return &Engine{
		store:         st,
		conv:          conv,
		policies:      policies,
		backend:       be,
		registry:      registry,
		invoker:       tools.NewInvoker(registry),
		confirmations: NewConfirmations(),
		personas:      personas,
		running:       make(map[string]context.CancelFunc),
	}
}

// Confirmations exposes the coordinator to the delivery channel.
func (e *Engine) Confirmations() *Confirmations {
	return e.confirmations
}

// Cancel cancels an in-flight turn. Returns false when the turn is not
// running (unknown or already terminal).
func (e *Engine) Cancel(turnID string) bool {
	e.mu.Lock()
	cancel, ok := e.running[turnID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (e *Engine) track(turnID string, cancel context.CancelFunc) {
	e.mu.Lock()
	e.running[turnID] = cancel
	e.mu.Unlock()
}

func (e *Engine) untrack(turnID string) {
	e.mu.Lock()
	delete(e.running, turnID)
	e.mu.Unlock()
}

// RunTurn processes one message through a complete turn and returns the
// terminal turn. The returned error is reserved for infrastructure faults
// (store unavailable); designed failures land in the turn's status instead.
func (e *Engine) RunTurn(ctx context.Context, msg domain.Message, persona string) (*domain.Turn, error) {
	snap := e.policies.Current()

	turn := &domain.Turn{
		TurnID:    "turn_" + uuid.New().String()[:8],
		MessageID: msg.MessageID,
		ChannelID: msg.ChannelID,
		UserID:    msg.UserID,
		Persona:   persona,
		Status:    domain.TurnStatusPending,
		StartedAt: time.Now(),
	}
	if err := e.store.CreateTurn(ctx, turn); err != nil {
		return nil, fmt.Errorf("failed to create turn: %w", err)
	}

	e.recordEvent(ctx, turn.TurnID, domain.EventTypeTurnStarted, domain.TurnStartedPayload{
		MessageID: msg.MessageID,
		ChannelID: msg.ChannelID,
		UserID:    msg.UserID,
		Persona:   persona,
	})

	turnCtx, cancel := context.WithTimeout(ctx, snap.TurnTimeout())
	defer cancel()
	e.track(turn.TurnID, cancel)
	defer e.untrack(turn.TurnID)

	turn.Status = domain.TurnStatusRunning
	if err := e.store.UpdateTurnStatus(ctx, turn.TurnID, domain.TurnStatusRunning); err != nil {
		log.Printf("ERROR: failed to update turn status: %v", err)
	}

	e.runLoop(turnCtx, snap, turn, msg)

	// Terminal bookkeeping uses the parent context: the turn context may
	// already be dead, and the outcome must still be recorded.
	e.finalize(ctx, turn, msg)
	return turn, nil
}

// runLoop drives the bounded round loop and sets the turn's terminal state
// on the in-memory turn.
func (e *Engine) runLoop(ctx context.Context, snap *policy.Snapshot, turn *domain.Turn, msg domain.Message) {
	systemPrompt := e.personas[turn.Persona]
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	history := e.conv.RecentHistory(ctx, msg.UserID, snap.HistoryLimit())
	snippets := e.conv.RelevantKnowledge(ctx, msg.UserID, msg.Text, snap.KnowledgeTopK())
	messages := buildInitialPrompt(systemPrompt, history, snippets, msg)

	definitions := e.registry.Definitions()
	confirmedTools := make(map[string]bool)

	for round := 0; round < snap.MaxRoundsPerTurn(); round++ {
		if e.checkInterrupted(ctx, turn) {
			return
		}

		e.recordEvent(ctx, turn.TurnID, domain.EventTypeRoundStarted, domain.RoundStartedPayload{Index: round})
		roundStart := time.Now()
		promptSnapshot := marshalPrompt(messages)

		resp, err := e.inferWithRetry(ctx, backend.InferRequest{Messages: messages, Tools: definitions}, turn.TurnID, round)
		if err != nil {
			if e.checkInterrupted(ctx, turn) {
				return
			}
			reason := domain.FailReasonBackendUnavailable
			if errors.Is(err, backend.ErrInvalidResponse) {
				reason = domain.FailReasonBackendInvalid
			}
			e.fail(turn, reason, err)
			return
		}

		if resp.IsFinal() {
			now := time.Now()
			e.persistRound(ctx, &domain.Round{
				TurnID:     turn.TurnID,
				Index:      round,
				Prompt:     promptSnapshot,
				FinalText:  resp.FinalAnswer,
				StartedAt:  roundStart,
				FinishedAt: &now,
			}, nil, nil)
			turn.Status = domain.TurnStatusCompleted
			turn.FinalAnswer = resp.FinalAnswer
			return
		}

		if len(resp.ToolCalls) == 0 {
			// Explicit "need more rounds" with nothing to execute.
			now := time.Now()
			e.persistRound(ctx, &domain.Round{
				TurnID:     turn.TurnID,
				Index:      round,
				Prompt:     promptSnapshot,
				StartedAt:  roundStart,
				FinishedAt: &now,
			}, nil, nil)
			continue
		}

		calls := e.buildToolCalls(turn.TurnID, round, resp.ToolCalls)
		confirmed := e.gatherConfirmations(ctx, snap, turn, calls, confirmedTools)
		if e.checkInterrupted(ctx, turn) {
			return
		}

		results := e.invoker.InvokeAll(ctx, snap, calls, msg.UserID, confirmed)
		if e.checkInterrupted(ctx, turn) {
			return
		}

		now := time.Now()
		e.persistRound(ctx, &domain.Round{
			TurnID:     turn.TurnID,
			Index:      round,
			Prompt:     promptSnapshot,
			StartedAt:  roundStart,
			FinishedAt: &now,
		}, calls, results)

		messages = appendRoundMessages(messages, resp.ToolCalls, results)
	}

	e.fail(turn, domain.FailReasonRoundLimitExceeded, nil)
}

// inferWithRetry retries transport failures with exponential backoff.
// Contract violations are never retried.
func (e *Engine) inferWithRetry(ctx context.Context, req backend.InferRequest, turnID string, round int) (*backend.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= backendRetries; attempt++ {
		if attempt > 0 {
			backoff := baseRetryBackoff << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		start := time.Now()
		resp, err := e.backend.Infer(ctx, req)
		latency := time.Since(start).Milliseconds()

		payload := domain.BackendCallDonePayload{RoundIndex: round, LatencyMs: latency}
		if err != nil {
			payload.Error = err.Error()
		} else {
			payload.ToolCallCount = len(resp.ToolCalls)
			if resp.Usage != nil {
				payload.PromptTokens = resp.Usage.PromptTokens
				payload.CompletionTokens = resp.Usage.CompletionTokens
			}
		}
		e.recordEvent(ctx, turnID, domain.EventTypeBackendCallDone, payload)

		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, backend.ErrUnavailable) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (e *Engine) buildToolCalls(turnID string, round int, requested []backend.RequestedCall) []domain.ToolCall {
	calls := make([]domain.ToolCall, 0, len(requested))
	for _, rc := range requested {
		callID := rc.CallID
		if callID == "" {
			callID = "tc_" + uuid.New().String()[:8]
		}
		calls = append(calls, domain.ToolCall{
			CallID:      callID,
			TurnID:      turnID,
			RoundIndex:  round,
			ToolName:    rc.Name,
			Args:        rc.Args,
			RequestedAt: time.Now(),
		})
	}
	return calls
}

// gatherConfirmations waits, one call at a time, for the approvals that
// policy demands. A prior approval for the same tool within this turn
// covers later calls. Timeout or denial leaves the call unconfirmed; the
// invoker then produces the denied result.
func (e *Engine) gatherConfirmations(ctx context.Context, snap *policy.Snapshot, turn *domain.Turn, calls []domain.ToolCall, confirmedTools map[string]bool) map[string]bool {
	confirmed := make(map[string]bool, len(calls))
	for _, call := range calls {
		args := map[string]interface{}{}
		if len(call.Args) > 0 {
			if err := json.Unmarshal(call.Args, &args); err != nil {
				continue // invalid args fail schema validation later
			}
		}
		if snap.Decide(ctx, call.ToolName, args, turn.UserID) != policy.DecisionRequireConfirmation {
			continue
		}
		if confirmedTools[call.ToolName] {
			confirmed[call.CallID] = true
			continue
		}

		timeout := snap.ConfirmationTimeout()
		e.recordEvent(ctx, turn.TurnID, domain.EventTypeConfirmationRequired, domain.ConfirmationRequiredPayload{
			CallID:      call.CallID,
			ToolName:    call.ToolName,
			Args:        call.Args,
			ArgsSummary: "Confirmation required for " + call.ToolName,
			DeadlineTs:  time.Now().Add(timeout).UnixMilli(),
		})

		d := e.confirmations.Await(ctx, turn.TurnID, call.CallID, timeout)
		e.recordEvent(ctx, turn.TurnID, domain.EventTypeConfirmationDecision, domain.ConfirmationDecisionPayload{
			CallID:    call.CallID,
			Approved:  d.Approved,
			DecidedBy: d.DecidedBy,
			Reason:    d.Reason,
		})

		if d.Approved {
			confirmed[call.CallID] = true
			confirmedTools[call.ToolName] = true
		}
	}
	return confirmed
}

// checkInterrupted maps a dead turn context onto the turn's terminal state.
func (e *Engine) checkInterrupted(ctx context.Context, turn *domain.Turn) bool {
	switch ctx.Err() {
	case nil:
		return false
	case context.DeadlineExceeded:
		e.fail(turn, domain.FailReasonTurnTimeout, ctx.Err())
	default:
		turn.Status = domain.TurnStatusCancelled
	}
	return true
}

func (e *Engine) fail(turn *domain.Turn, reason domain.FailReason, err error) {
	turn.Status = domain.TurnStatusFailed
	turn.FailReason = reason
	turn.FinalAnswer = FallbackMessage(reason)
	if err != nil {
		errData, _ := json.Marshal(map[string]string{"reason": string(reason), "message": err.Error()})
		turn.Error = errData
	}
}

// finalize writes the terminal state, records the closing event, and
// appends the conversation record. A cancelled turn leaves no record; a
// failed turn's record carries no answer text.
func (e *Engine) finalize(ctx context.Context, turn *domain.Turn, msg domain.Message) {
	if ctx.Err() != nil {
		detached, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ctx = detached
	}

	if err := e.store.UpdateTurnCompleted(ctx, turn.TurnID, turn.Status, turn.FailReason, turn.FinalAnswer, turn.Error); err != nil {
		log.Printf("ERROR: failed to update turn %s: %v", turn.TurnID, err)
	}
	now := time.Now()
	turn.EndedAt = &now

	switch turn.Status {
	case domain.TurnStatusCompleted:
		rounds, _ := e.store.GetRounds(ctx, turn.TurnID)
		e.recordEvent(ctx, turn.TurnID, domain.EventTypeTurnCompleted, domain.TurnCompletedPayload{
			Rounds:      len(rounds),
			FinalAnswer: turn.FinalAnswer,
		})
	case domain.TurnStatusFailed:
		e.recordEvent(ctx, turn.TurnID, domain.EventTypeTurnFailed, domain.TurnFailedPayload{
			Reason:  turn.FailReason,
			Message: turn.FinalAnswer,
		})
	case domain.TurnStatusCancelled:
		e.recordEvent(ctx, turn.TurnID, domain.EventTypeTurnCancelled, nil)
		return
	}

	output := turn.FinalAnswer
	if turn.Status == domain.TurnStatusFailed {
		output = ""
	}
	e.conv.AppendRecord(&domain.ConversationRecord{
		RecordID:  "rec_" + uuid.New().String()[:8],
		TurnID:    turn.TurnID,
		UserID:    msg.UserID,
		ChannelID: msg.ChannelID,
		Input:     msg.Text,
		Output:    output,
		CreatedAt: now,
	})
}

// persistRound stores the round row plus one tool_call row per call.
func (e *Engine) persistRound(ctx context.Context, round *domain.Round, calls []domain.ToolCall, results []domain.ToolResult) {
	if err := e.store.CreateRound(ctx, round); err != nil {
		log.Printf("ERROR: failed to persist round %d of %s: %v", round.Index, round.TurnID, err)
	}

	resultsByID := make(map[string]*domain.ToolResult, len(results))
	for i := range results {
		resultsByID[results[i].CallID] = &results[i]
	}

	for i := range calls {
		call := &calls[i]
		result := resultsByID[call.CallID]
		e.recordEvent(ctx, round.TurnID, domain.EventTypeToolRequested, domain.ToolRequestedPayload{
			CallID:   call.CallID,
			ToolName: call.ToolName,
			Args:     call.Args,
		})
		if err := e.store.CreateToolCall(ctx, call, result); err != nil {
			log.Printf("ERROR: failed to persist tool call %s: %v", call.CallID, err)
		}
		if result != nil {
			e.recordEvent(ctx, round.TurnID, domain.EventTypeToolResult, domain.ToolResultPayload{
				CallID:     result.CallID,
				ToolName:   result.ToolName,
				Status:     result.Status,
				DurationMs: result.Duration.Milliseconds(),
				Error:      result.Error,
			})
		}
	}
}

// recordEvent records a trace event to the store. Trace failures are logged,
// never escalated. Events survive turn-context cancellation.
func (e *Engine) recordEvent(ctx context.Context, turnID string, eventType domain.EventType, payload interface{}) {
	var payloadBytes []byte
	if payload != nil {
		var err error
		payloadBytes, err = json.Marshal(payload)
		if err != nil {
			log.Printf("ERROR: failed to marshal %s payload: %v", eventType, err)
			return
		}
	}

	if ctx.Err() != nil {
		detached, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		ctx = detached
	}

	event := &domain.Event{
		EventID: "evt_" + uuid.New().String()[:8],
		TurnID:  turnID,
		Ts:      time.Now().UnixMilli(),
		Type:    eventType,
		Payload: payloadBytes,
	}
	if err := e.store.CreateEvent(ctx, event); err != nil {
		log.Printf("ERROR: failed to record %s event: %v", eventType, err)
	}
}

func marshalPrompt(messages []backend.ChatMessage) string {
	data, err := json.Marshal(messages)
	if err != nil {
		return ""
	}
	return string(data)
}
