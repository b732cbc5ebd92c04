package policy

import (
	"context"

	"github.com/stockpilot/trigger-engine/tools"
	"github.com/stockpilot/trigger-engine/types"
)

// MonitorPlanner handles status checks and informational triggers. A bare
// check that flags nothing finishes immediately; anything carrying a signal
// gets one read-only snapshot of the inventory before the planner finishes.
type MonitorPlanner struct{}

func (p *MonitorPlanner) Next(ctx context.Context, run *types.RunState, ts *tools.Set) (types.Action, error) {
	if bareCheck(run.Trigger) {
		return types.Action{
			Type:   types.ActionDone,
			Reason: "no anomalies reported; nothing to inspect",
		}, nil
	}

	report, reported := lastStepFor(run, "generate_inventory_report")
	if !reported {
		return types.Action{
			Type:   types.ActionToolCall,
			Tool:   "generate_inventory_report",
			Inputs: marshalInputs(map[string]any{}),
			Reason: "snapshot inventory status",
		}, nil
	}
	if report.Error != "" {
		return types.Action{
			Type:   types.ActionDone,
			Reason: "inventory report failed: " + report.Error,
		}, nil
	}

	reason := "status check complete"
	if result := decodeResult(report); result != nil {
		if low, ok := result["lowStock"].(float64); ok && low > 0 {
			reason = "status check complete; low-stock items flagged in report"
		}
	}
	return types.Action{Type: types.ActionDone, Reason: reason}, nil
}

// bareCheck reports a routine check trigger that names no items and carries
// no details worth inspecting.
func bareCheck(t types.Trigger) bool {
	switch t.Kind {
	case types.KindManualCheck, types.KindScheduledCheck:
		return len(t.Details) == 0 && len(t.ItemsAffected) == 0
	}
	return false
}
