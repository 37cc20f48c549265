package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aios-native/orchestrator/domain"
	"github.com/aios-native/orchestrator/policy"
)

// Invoker resolves tool calls against the registry and executes them under
// the policy snapshot's constraints.
type Invoker struct {
	registry *Registry
}

// NewInvoker creates an invoker over the given registry.
func NewInvoker(registry *Registry) *Invoker {
	return &Invoker{registry: registry}
}

// Invoke executes one tool call. confirmed reports whether an explicit user
// confirmation exists for this call; a call whose policy decision is
// require_confirmation is denied without one. The capability is never
// invoked for denied or invalid calls.
func (inv *Invoker) Invoke(ctx context.Context, snap *policy.Snapshot, call domain.ToolCall, userID string, confirmed bool) domain.ToolResult {
	start := time.Now()
	result := domain.ToolResult{
		CallID:   call.CallID,
		ToolName: call.ToolName,
	}

	entry, ok := inv.registry.lookup(call.ToolName)
	if !ok {
		result.Status = domain.ToolResultError
		result.Error = fmt.Sprintf("tool %q is not registered", call.ToolName)
		result.Duration = time.Since(start)
		return result
	}

	args, err := decodeArgs(call.Args)
	if err != nil {
		result.Status = domain.ToolResultError
		result.Error = fmt.Sprintf("invalid arguments: %v", err)
		result.Duration = time.Since(start)
		return result
	}

	if err := entry.schema.Validate(args); err != nil {
		result.Status = domain.ToolResultError
		result.Error = fmt.Sprintf("invalid arguments: %v", err)
		result.Duration = time.Since(start)
		return result
	}

	switch snap.Decide(ctx, call.ToolName, args, userID) {
	case policy.DecisionBlock:
		result.Status = domain.ToolResultDenied
		result.Error = "denied by policy"
		result.Duration = time.Since(start)
		return result
	case policy.DecisionRequireConfirmation:
		if !confirmed {
			result.Status = domain.ToolResultDenied
			result.Error = "confirmation required but not granted"
			result.Duration = time.Since(start)
			return result
		}
	}

	output, execErr := inv.execute(ctx, entry.capability, Env{Snapshot: snap, UserID: userID}, args, snap.ToolTimeout(call.ToolName))
	result.Duration = time.Since(start)

	switch {
	case execErr == nil:
		result.Status = domain.ToolResultOK
		result.Output = output
	case execErr == context.DeadlineExceeded:
		result.Status = domain.ToolResultTimeout
		result.Error = fmt.Sprintf("tool timed out after %s", snap.ToolTimeout(call.ToolName))
	default:
		result.Status = domain.ToolResultError
		result.Error = redact(execErr)
	}
	return result
}

// execute runs the capability under a per-call timeout. On expiry the
// capability's context is cancelled; if it keeps running anyway its late
// result is discarded.
func (inv *Invoker) execute(ctx context.Context, capability Capability, env Env, args map[string]interface{}, timeout time.Duration) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		output string
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		output, err := capability(callCtx, env, args)
		done <- outcome{output: output, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && callCtx.Err() == context.DeadlineExceeded {
			return "", context.DeadlineExceeded
		}
		return out.output, out.err
	case <-callCtx.Done():
		if callCtx.Err() == context.DeadlineExceeded {
			return "", context.DeadlineExceeded
		}
		return "", callCtx.Err()
	}
}

// InvokeAll fans the round's calls out in parallel and joins before
// returning: exactly one result per call, index-aligned with calls.
// confirmed holds the call IDs that carry an explicit user confirmation.
func (inv *Invoker) InvokeAll(ctx context.Context, snap *policy.Snapshot, calls []domain.ToolCall, userID string, confirmed map[string]bool) []domain.ToolResult {
	results := make([]domain.ToolResult, len(calls))

	g, groupCtx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = inv.Invoke(groupCtx, snap, call, userID, confirmed[call.CallID])
			return nil
		})
	}
	// Workers never return errors; the wait is the fan-in barrier.
	if err := g.Wait(); err != nil {
		log.Printf("ERROR: tool fan-out wait failed: %v", err)
	}
	return results
}

// decodeArgs parses the raw argument payload into a map. Empty payloads are
// treated as no arguments. A "path" argument is resolved to an absolute
// path so policy prefix predicates evaluate canonical form.
func decodeArgs(raw json.RawMessage) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
	}
	if p, ok := args["path"].(string); ok && p != "" {
		abs, err := filepath.Abs(p)
		if err == nil {
			args["path"] = abs
		}
	}
	return args, nil
}

// redact strips any internal detail from an execution error; the surfaced
// message is what the model and user may see.
func redact(err error) string {
	msg := err.Error()
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "..."
	}
	return msg
}
