// Package tools maps tool names to executable capabilities and runs them
// under policy and timeout constraints.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aios-native/orchestrator/internal/backend"
	"github.com/aios-native/orchestrator/policy"
)

// Env carries the per-call environment a capability may consult.
type Env struct {
	Snapshot *policy.Snapshot
	UserID   string
}

// Capability executes one validated tool call. It must not retain args or
// share mutable state across invocations.
type Capability func(ctx context.Context, env Env, args map[string]interface{}) (string, error)

// ArgSpec describes a single schema argument.
type ArgSpec struct {
	Type        string // string | number | boolean | object | array
	Required    bool
	Description string
}

// Schema declares a tool's accepted arguments.
type Schema struct {
	Description string
	Args        map[string]ArgSpec
}

// Validate checks args against the schema: required presence, known names,
// primitive type tags.
func (s Schema) Validate(args map[string]interface{}) error {
	for name, spec := range s.Args {
		val, ok := args[name]
		if !ok {
			if spec.Required {
				return fmt.Errorf("missing required argument %q", name)
			}
			continue
		}
		if err := checkType(name, spec.Type, val); err != nil {
			return err
		}
	}
	for name := range args {
		if _, ok := s.Args[name]; !ok {
			return fmt.Errorf("unknown argument %q", name)
		}
	}
	return nil
}

func checkType(name, want string, val interface{}) error {
	if val == nil {
		return fmt.Errorf("argument %q is null", name)
	}
	var ok bool
	switch want {
	case "string":
		_, ok = val.(string)
	case "number":
		switch val.(type) {
		case float64, int, int64, float32:
			ok = true
		}
	case "boolean":
		_, ok = val.(bool)
	case "object":
		_, ok = val.(map[string]interface{})
	case "array":
		_, ok = val.([]interface{})
	default:
		return fmt.Errorf("argument %q has unsupported schema type %q", name, want)
	}
	if !ok {
		return fmt.Errorf("argument %q must be of type %s", name, want)
	}
	return nil
}

// Parameters renders the schema as the JSON-schema object the backend expects.
func (s Schema) Parameters() map[string]interface{} {
	properties := make(map[string]interface{}, len(s.Args))
	var required []string
	for name, spec := range s.Args {
		properties[name] = map[string]interface{}{
			"type":        spec.Type,
			"description": spec.Description,
		}
		if spec.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	params := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		params["required"] = required
	}
	return params
}

type entry struct {
	schema     Schema
	capability Capability
}

// Registry stores tool capabilities keyed by tool name. Resolution happens
// at startup; there is no dynamic lookup at turn time beyond the map read.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
	}
}

// Register adds a capability for a tool name.
func (r *Registry) Register(name string, schema Schema, capability Capability) error {
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if capability == nil {
		return fmt.Errorf("capability is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("capability already registered for %s", name)
	}
	r.entries[name] = entry{schema: schema, capability: capability}
	return nil
}

// MustRegister adds a capability or panics. Startup-time only.
func (r *Registry) MustRegister(name string, schema Schema, capability Capability) {
	if err := r.Register(name, schema, capability); err != nil {
		panic(err)
	}
}

func (r *Registry) lookup(name string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Definitions lists all registered tools for the backend, sorted by name.
func (r *Registry) Definitions() []backend.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]backend.ToolDefinition, 0, len(names))
	for _, name := range names {
		e := r.entries[name]
		out = append(out, backend.ToolDefinition{
			Name:        name,
			Description: e.schema.Description,
			Parameters:  e.schema.Parameters(),
		})
	}
	return out
}
