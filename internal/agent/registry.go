package agent

import (
	"encoding/json"
	"fmt"
	"sync"
)

// ToolSchema is the LLM-facing description of one registered tool: its name,
// natural language description, and JSON Schema parameters.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolRegistry holds the tools available to a ReAct run. Registration order
// is preserved so All and Schema return tools in a stable, deterministic
// order regardless of map iteration.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register inserts tool under its Name(). Registering the same name twice
// overwrites the previous tool but keeps its original position in Order.
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
}

// Get looks up a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %q not found", name)
	}
	return tool, nil
}

// Has reports whether name is registered.
func (r *ToolRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// All returns every registered tool in insertion order.
func (r *ToolRegistry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Schema returns the LLM-facing {name, description, parameters} schema for
// every registered tool, in insertion order.
func (r *ToolRegistry) Schema() []ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return out
}

// RequiresSandbox reports whether the named tool implements SandboxRequirer
// and requires a session's execution context to run. Tools that don't
// implement the interface are assumed host-safe.
func (r *ToolRegistry) RequiresSandbox(name string) bool {
	tool, err := r.Get(name)
	if err != nil {
		return false
	}
	requirer, ok := tool.(SandboxRequirer)
	return ok && requirer.RequiresSandbox()
}
