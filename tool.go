package mica

import (
	"context"
	"encoding/json"
)

// Tool defines an agent capability with one or more tool functions.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, input json.RawMessage) (ToolResult, error)
}

type ideaKey struct{}

// WithIdeaID returns a context carrying the exchange's idea id. The
// engine sets it before tool execution.
func WithIdeaID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ideaKey{}, id)
}

// IdeaIDFromContext returns the idea id for the current exchange, or ""
// outside one. Tool handlers scope their storage access with it.
func IdeaIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ideaKey{}).(string)
	return id
}

// ToolDefinition describes one tool function advertised to the agent.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`

	// StartNotice and DoneNotice are user-facing side-effect notifications
	// emitted around execution ("search started", "note proposed"). They
	// are host-side only, never part of the advertised definition.
	StartNotice string `json:"-"`
	DoneNotice  string `json:"-"`
}

// ToolResult is the outcome of a tool execution. A non-empty Error marks
// failure; the loop records it into history as an error result block and
// keeps going. Tools never fail the exchange.
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Registry holds the registered tools and routes calls by function name.
// Calls run strictly sequentially, strictly after a round has finished
// streaming; the loop owns that ordering, the registry only dispatches.
type Registry struct {
	tools []Tool
	defs  map[string]ToolDefinition
	owner map[string]Tool
}

// NewRegistry creates a registry over the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{
		defs:  make(map[string]ToolDefinition),
		owner: make(map[string]Tool),
	}
	for _, t := range tools {
		r.Add(t)
	}
	return r
}

// Add registers a tool. Later registrations win name collisions.
func (r *Registry) Add(t Tool) {
	r.tools = append(r.tools, t)
	for _, d := range t.Definitions() {
		r.defs[d.Name] = d
		r.owner[d.Name] = t
	}
}

// Definitions returns every registered function in registration order.
func (r *Registry) Definitions() []ToolDefinition {
	var defs []ToolDefinition
	for _, t := range r.tools {
		defs = append(defs, t.Definitions()...)
	}
	return defs
}

// Definition looks up one function's definition.
func (r *Registry) Definition(name string) (ToolDefinition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Execute dispatches one call. An unknown name or a handler error becomes
// a structured failure result, never a Go error.
func (r *Registry) Execute(ctx context.Context, call ToolCall) ToolResult {
	t, ok := r.owner[call.Name]
	if !ok {
		return ToolResult{Error: "unknown tool: " + call.Name}
	}
	res, err := t.Execute(ctx, call.Name, call.Input)
	if err != nil {
		return ToolResult{Error: err.Error()}
	}
	return res
}
