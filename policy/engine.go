// Package policy loads and evaluates the ruleset that bounds what a turn may do.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
)

// Decision is the outcome of a policy evaluation for one tool call.
type Decision string

const (
	DecisionAllow               Decision = "allow"
	DecisionRequireConfirmation Decision = "require_confirmation"
	DecisionBlock               Decision = "block"
)

// Engine evaluates tool-call decisions against a prepared rego query.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine compiles the rego module with the document's rules injected as data.rules.
func NewEngine(ctx context.Context, regoSource string, rules map[string]interface{}) (*Engine, error) {
	r := rego.New(
		rego.Query("data.turn_policy.decision"),
		rego.Module("turn_policy.rego", regoSource),
		rego.Store(inmem.NewFromObject(map[string]interface{}{"rules": rules})),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate returns the decision for the given input.
// Input carries tool_name, args and user_id. Fails closed: any evaluation
// error or unexpected result shape is reported as an error by the caller.
func (e *Engine) Evaluate(ctx context.Context, input interface{}) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "", fmt.Errorf("policy returned no decision")
	}

	val := results[0].Expressions[0].Value
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("policy returned unexpected type %T", val)
	}

	switch Decision(s) {
	case DecisionAllow, DecisionRequireConfirmation, DecisionBlock:
		return Decision(s), nil
	}
	return "", fmt.Errorf("policy returned unknown decision %q", s)
}

// DefaultRego is the default policy module. Terminal commands are checked
// against prefix allow/deny lists, file tools against path prefixes, and
// tools listed in confirm_tools need an explicit user confirmation.
const DefaultRego = `
package turn_policy

import rego.v1

default decision := "allow"

decision := "block" if blocked

decision := "require_confirmation" if {
	not blocked
	input.tool_name in data.rules.confirm_tools
}

blocked if {
	input.tool_name in data.rules.blocked_tools
}

blocked if {
	input.tool_name == "terminal.execute"
	some pattern in data.rules.terminal.blocked_patterns
	contains(input.args.command, pattern)
}

blocked if {
	input.tool_name == "terminal.execute"
	count(data.rules.terminal.allowed_commands) > 0
	not command_allowed
}

command_allowed if {
	some prefix in data.rules.terminal.allowed_commands
	startswith(trim_space(input.args.command), prefix)
}

blocked if {
	startswith(input.tool_name, "files.")
	some prefix in data.rules.files.blocked_paths
	startswith(input.args.path, prefix)
}

blocked if {
	startswith(input.tool_name, "files.")
	count(data.rules.files.allowed_paths) > 0
	not path_allowed
}

path_allowed if {
	some prefix in data.rules.files.allowed_paths
	startswith(input.args.path, prefix)
}
`
