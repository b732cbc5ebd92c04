// Package tools provides the business operations the decision loop can
// invoke: inventory lookups, supplier search, purchase orders, forecasting,
// and notifications. Every tool declares its side-effect class so the engine
// knows which calls need human approval.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stockpilot/trigger-engine/types"
)

// Definition describes a tool to the engine and to API clients.
type Definition struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	SideEffect  types.SideEffect `json:"sideEffect"`
	// AutoApprove exempts a mutating tool from human approval regardless of
	// value, such as notifications.
	AutoApprove bool `json:"autoApprove,omitempty"`
	// RequireApproval forces every call to a mutating tool through human
	// approval regardless of value. It wins over AutoApprove and over the
	// value threshold.
	RequireApproval bool           `json:"requireApproval,omitempty"`
	JSONSchema      map[string]any `json:"jsonSchema,omitempty"`
}

// Mutating reports whether calls to this tool change external systems.
func (d Definition) Mutating() bool {
	return d.SideEffect == types.SideEffectMutate
}

type Tool interface {
	Definition() Definition
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// ValueEstimator is implemented by tools whose calls carry a monetary value,
// used to decide whether a call crosses the approval threshold.
type ValueEstimator interface {
	EstimateValue(args json.RawMessage) float64
}

type FuncTool struct {
	def Definition
	fn  func(ctx context.Context, args json.RawMessage) (any, error)
}

func NewFuncTool(def Definition, fn func(ctx context.Context, args json.RawMessage) (any, error)) *FuncTool {
	return &FuncTool{def: def, fn: fn}
}

func (t *FuncTool) Definition() Definition {
	return t.def
}

func (t *FuncTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	if t.fn == nil {
		return nil, fmt.Errorf("tool %q has no execute function", t.def.Name)
	}
	return t.fn(ctx, args)
}
