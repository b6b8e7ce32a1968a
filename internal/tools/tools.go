// Package tools implements the local executors behind the model's tool
// calls. Every executor returns failures as error-flagged results so the
// model sees them and can recover; a Go error from Execute means the
// executor itself is broken, not the requested operation.
package tools

import (
	"context"
	"encoding/json"
)

// Result is the payload returned to the model for one tool call.
type Result struct {
	Content string
	IsError bool
}

// Tool is a single executable capability.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// Registry holds the tools exposed to the model, in registration order.
type Registry struct {
	tools []Tool
	byKey map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{byKey: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

func (r *Registry) Register(t Tool) {
	if _, ok := r.byKey[t.Name()]; ok {
		return
	}
	r.tools = append(r.tools, t)
	r.byKey[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.byKey[name]
	return t, ok
}

func (r *Registry) All() []Tool {
	out := make([]Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

func toolError(message string) *Result {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &Result{Content: message, IsError: true}
	}
	return &Result{Content: string(payload), IsError: true}
}

func toolResult(result map[string]interface{}) *Result {
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError("encode result: " + err.Error())
	}
	return &Result{Content: string(payload)}
}

func mustSchema(schema map[string]interface{}) json.RawMessage {
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}
