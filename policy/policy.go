// Package policy chooses the next action for a run. Planners are
// deterministic: they inspect the trigger and the steps taken so far and
// propose exactly one next action. The engine enforces budgets and approval
// gates around whatever the policy proposes.
package policy

import (
	"context"
	"encoding/json"

	"github.com/stockpilot/trigger-engine/tools"
	"github.com/stockpilot/trigger-engine/types"
)

// Policy proposes the next action for a run.
type Policy interface {
	Next(ctx context.Context, run *types.RunState, ts *tools.Set) (types.Action, error)
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(ctx context.Context, run *types.RunState, ts *tools.Set) (types.Action, error)

func (f PolicyFunc) Next(ctx context.Context, run *types.RunState, ts *tools.Set) (types.Action, error) {
	return f(ctx, run, ts)
}

// Router dispatches to a planner by trigger kind. Kinds without a dedicated
// planner fall through to the monitor planner, which only observes.
type Router struct {
	planners map[types.TriggerKind]Policy
	fallback Policy
}

func NewRouter() *Router {
	restock := &RestockPlanner{}
	forecast := &ForecastPlanner{}
	monitor := &MonitorPlanner{}
	return &Router{
		planners: map[types.TriggerKind]Policy{
			types.KindStockoutAlert:   restock,
			types.KindLowStock:        restock,
			types.KindReorderRequest:  restock,
			types.KindEmergencyOrder:  restock,
			types.KindForecastRequest: forecast,
			types.KindSeasonalPrep:    forecast,
			types.KindBudgetCycle:     forecast,
		},
		fallback: monitor,
	}
}

func (r *Router) Next(ctx context.Context, run *types.RunState, ts *tools.Set) (types.Action, error) {
	if planner, ok := r.planners[run.Trigger.Kind]; ok {
		return planner.Next(ctx, run, ts)
	}
	return r.fallback.Next(ctx, run, ts)
}

// lastStepFor returns the most recent step that invoked the named tool, if
// any.
func lastStepFor(run *types.RunState, tool string) (types.Step, bool) {
	for i := len(run.Steps) - 1; i >= 0; i-- {
		if run.Steps[i].Tool == tool {
			return run.Steps[i], true
		}
	}
	return types.Step{}, false
}

// succeeded reports whether the step ran without error.
func succeeded(step types.Step, ok bool) bool {
	return ok && step.Error == ""
}

// decodeResult parses a step's recorded tool output.
func decodeResult(step types.Step) map[string]any {
	if step.Result == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(step.Result), &out); err != nil {
		return nil
	}
	return out
}

func marshalInputs(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}
