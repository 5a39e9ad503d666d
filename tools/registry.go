// Package tools provides the tool registry, the execution environment tools
// run against, and the builtin tool set exposed to the model.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/modoki-agent/modoki/llm"
)

// ErrUnknownTool is returned by Execute for names with no registration.
var ErrUnknownTool = errors.New("unknown tool")

// Handler executes a tool call. It receives decoded arguments and the
// environment to act on, and returns the text result that goes back to the
// model. A returned error becomes an error result, not a session failure.
type Handler func(ctx context.Context, args map[string]any, env Environment) (string, error)

// Tool pairs the metadata sent to the model with its executor.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any

	// Destructive tools require confirmation and run serially.
	Destructive bool

	Handler Handler

	// Preview renders a short human-readable summary of what the call
	// would do, shown in confirmation prompts. Optional.
	Preview func(args map[string]any, env Environment) string
}

// Registry manages tool registration and lookup.
type Registry struct {
	tools map[string]*Tool
	mu    sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(tool *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
}

// Unregister removes a tool.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a registered tool, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Definitions returns the tool definitions for a model request, sorted by
// name so requests are deterministic.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, llm.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// IsDestructive reports whether name is registered as destructive. Unknown
// names are not destructive; they fail in Execute instead.
func (r *Registry) IsDestructive(name string) bool {
	tool := r.Get(name)
	return tool != nil && tool.Destructive
}

// Preview returns the confirmation summary for a call, falling back to the
// raw arguments when the tool defines no preview.
func (r *Registry) Preview(name string, args map[string]any, env Environment) string {
	tool := r.Get(name)
	if tool == nil || tool.Preview == nil {
		data, err := json.Marshal(args)
		if err != nil {
			return name
		}
		return string(data)
	}
	return tool.Preview(args, env)
}

// Execute runs a registered tool. Panics inside a handler are converted to
// errors so one bad tool cannot take down the session.
func (r *Registry) Execute(ctx context.Context, env Environment, name string, args map[string]any) (result string, err error) {
	tool := r.Get(name)
	if tool == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool %s panicked: %v", name, rec)
		}
	}()
	return tool.Handler(ctx, args, env)
}

// ParseArguments decodes a tool call's raw JSON arguments. Empty input
// yields an empty map.
func ParseArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("malformed tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// DecodeArgs maps decoded JSON arguments onto a typed struct. Decoding is
// weakly typed so a model sending "5" for an integer still works.
func DecodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(args)
}
