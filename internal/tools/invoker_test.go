package tools

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aios-native/orchestrator/domain"
	"github.com/aios-native/orchestrator/policy"
)

func testSnapshot(t *testing.T, mutate func(*policy.Document)) *policy.Snapshot {
	t.Helper()
	doc := policy.DefaultDocument()
	if mutate != nil {
		mutate(&doc)
	}
	snap, err := policy.Compile(context.Background(), doc)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return snap
}

func call(name string, args string) domain.ToolCall {
	return domain.ToolCall{
		CallID:      "tc1",
		TurnID:      "t1",
		ToolName:    name,
		Args:        json.RawMessage(args),
		RequestedAt: time.Now(),
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	inv := NewInvoker(NewRegistry())
	snap := testSnapshot(t, nil)

	result := inv.Invoke(context.Background(), snap, call("nope.missing", `{}`), "u1", false)
	if result.Status != domain.ToolResultError {
		t.Fatalf("expected error, got %s", result.Status)
	}
	if !strings.Contains(result.Error, "not registered") {
		t.Fatalf("unexpected error: %q", result.Error)
	}
}

func TestInvokeSchemaRejectsBeforeExecution(t *testing.T) {
	var executed atomic.Int32
	r := NewRegistry()
	r.MustRegister("probe.run", Schema{
		Args: map[string]ArgSpec{
			"name": {Type: "string", Required: true},
		},
	}, func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
		executed.Add(1)
		return "ok", nil
	})
	inv := NewInvoker(r)
	snap := testSnapshot(t, nil)

	result := inv.Invoke(context.Background(), snap, call("probe.run", `{}`), "u1", false)
	if result.Status != domain.ToolResultError {
		t.Fatalf("expected error, got %s", result.Status)
	}
	if executed.Load() != 0 {
		t.Fatalf("capability ran despite invalid args")
	}

	result = inv.Invoke(context.Background(), snap, call("probe.run", `{"name":"x","extra":1}`), "u1", false)
	if result.Status != domain.ToolResultError {
		t.Fatalf("expected error for unknown arg, got %s", result.Status)
	}
	if executed.Load() != 0 {
		t.Fatalf("capability ran despite unknown arg")
	}
}

func TestInvokeBlockedNeverExecutes(t *testing.T) {
	var executed atomic.Int32
	r := NewRegistry()
	r.MustRegister("probe.run", Schema{}, func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
		executed.Add(1)
		return "ok", nil
	})
	inv := NewInvoker(r)
	snap := testSnapshot(t, func(doc *policy.Document) {
		doc.BlockedTools = []string{"probe.run"}
	})

	result := inv.Invoke(context.Background(), snap, call("probe.run", `{}`), "u1", false)
	if result.Status != domain.ToolResultDenied {
		t.Fatalf("expected denied, got %s", result.Status)
	}
	if result.Error != "denied by policy" {
		t.Fatalf("unexpected error: %q", result.Error)
	}
	if executed.Load() != 0 {
		t.Fatalf("capability ran despite policy block")
	}
}

func TestInvokeConfirmationRequired(t *testing.T) {
	var executed atomic.Int32
	r := NewRegistry()
	r.MustRegister("probe.run", Schema{}, func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
		executed.Add(1)
		return "ok", nil
	})
	inv := NewInvoker(r)
	snap := testSnapshot(t, func(doc *policy.Document) {
		doc.ConfirmTools = []string{"probe.run"}
	})

	result := inv.Invoke(context.Background(), snap, call("probe.run", `{}`), "u1", false)
	if result.Status != domain.ToolResultDenied {
		t.Fatalf("expected denied without confirmation, got %s", result.Status)
	}
	if executed.Load() != 0 {
		t.Fatalf("capability ran without confirmation")
	}

	result = inv.Invoke(context.Background(), snap, call("probe.run", `{}`), "u1", true)
	if result.Status != domain.ToolResultOK {
		t.Fatalf("expected ok with confirmation, got %s (%s)", result.Status, result.Error)
	}
	if executed.Load() != 1 {
		t.Fatalf("capability did not run after confirmation")
	}
}

func TestInvokeTimeout(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("probe.slow", Schema{}, func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
		select {
		case <-time.After(2 * time.Second):
			return "too late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	inv := NewInvoker(r)
	snap := testSnapshot(t, func(doc *policy.Document) {
		doc.Limits.ToolTimeoutsMs = map[string]int{"probe.slow": 50}
	})

	start := time.Now()
	result := inv.Invoke(context.Background(), snap, call("probe.slow", `{}`), "u1", false)
	if result.Status != domain.ToolResultTimeout {
		t.Fatalf("expected timeout, got %s (%s)", result.Status, result.Error)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("invoke did not return promptly on timeout")
	}
}

func TestInvokePanicBecomesError(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("probe.panic", Schema{}, func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
		panic("boom")
	})
	inv := NewInvoker(r)
	snap := testSnapshot(t, nil)

	result := inv.Invoke(context.Background(), snap, call("probe.panic", `{}`), "u1", false)
	if result.Status != domain.ToolResultError {
		t.Fatalf("expected error, got %s", result.Status)
	}
	if !strings.Contains(result.Error, "panicked") {
		t.Fatalf("unexpected error: %q", result.Error)
	}
}

func TestInvokeAllFanIn(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("probe.echo", Schema{
		Args: map[string]ArgSpec{
			"text":     {Type: "string", Required: true},
			"delay_ms": {Type: "number"},
		},
	}, func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
		if d, ok := args["delay_ms"].(float64); ok {
			time.Sleep(time.Duration(d) * time.Millisecond)
		}
		return args["text"].(string), nil
	})
	inv := NewInvoker(r)
	snap := testSnapshot(t, nil)

	calls := []domain.ToolCall{
		{CallID: "tc1", ToolName: "probe.echo", Args: json.RawMessage(`{"text":"a","delay_ms":80}`)},
		{CallID: "tc2", ToolName: "probe.echo", Args: json.RawMessage(`{"text":"b"}`)},
		{CallID: "tc3", ToolName: "probe.echo", Args: json.RawMessage(`{"text":"c","delay_ms":40}`)},
	}

	results := inv.InvokeAll(context.Background(), snap, calls, "u1", nil)
	if len(results) != len(calls) {
		t.Fatalf("expected %d results, got %d", len(calls), len(results))
	}
	for i, want := range []string{"a", "b", "c"} {
		if results[i].CallID != calls[i].CallID {
			t.Fatalf("results not index-aligned: %+v", results)
		}
		if results[i].Status != domain.ToolResultOK || results[i].Output != want {
			t.Fatalf("unexpected result %d: %+v", i, results[i])
		}
	}
}

func TestInvokeAllMixedOutcomes(t *testing.T) {
	var executed atomic.Int32
	r := NewRegistry()
	r.MustRegister("probe.ok", Schema{}, func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
		return "fine", nil
	})
	r.MustRegister("probe.blocked", Schema{}, func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
		executed.Add(1)
		return "should not run", nil
	})
	inv := NewInvoker(r)
	snap := testSnapshot(t, func(doc *policy.Document) {
		doc.BlockedTools = []string{"probe.blocked"}
	})

	calls := []domain.ToolCall{
		{CallID: "tc1", ToolName: "probe.ok", Args: json.RawMessage(`{}`)},
		{CallID: "tc2", ToolName: "probe.blocked", Args: json.RawMessage(`{}`)},
	}

	results := inv.InvokeAll(context.Background(), snap, calls, "u1", nil)
	if results[0].Status != domain.ToolResultOK {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if results[1].Status != domain.ToolResultDenied {
		t.Fatalf("unexpected second result: %+v", results[1])
	}
	if executed.Load() != 0 {
		t.Fatalf("blocked capability was executed")
	}
}
