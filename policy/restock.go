package policy

import (
	"context"
	"fmt"

	"github.com/stockpilot/trigger-engine/tools"
	"github.com/stockpilot/trigger-engine/trigger"
	"github.com/stockpilot/trigger-engine/types"
)

// RestockPlanner handles stock shortfalls: confirm the position, source a
// supplier, place the order. An order the operator denied ends the run
// instead of being retried.
type RestockPlanner struct{}

func (p *RestockPlanner) Next(ctx context.Context, run *types.RunState, ts *tools.Set) (types.Action, error) {
	item := p.item(run)
	if item == "" {
		return types.Action{
			Type:     types.ActionQuestion,
			Question: "Which item should be restocked?",
			Reason:   "trigger names no item",
		}, nil
	}

	if answer := lastAnswer(run); answer != "" && run.Trigger.DetailString("item") == "" {
		item = answer
	}

	check, checked := lastStepFor(run, "check_stock")
	if !checked {
		return types.Action{
			Type:   types.ActionToolCall,
			Tool:   "check_stock",
			Inputs: marshalInputs(map[string]any{"item": item}),
			Reason: "confirm the stock position",
		}, nil
	}
	if check.Error != "" {
		return types.Action{
			Type:   types.ActionDone,
			Reason: fmt.Sprintf("stock check failed: %s", check.Error),
		}, nil
	}
	if result := decodeResult(check); result != nil {
		if below, ok := result["belowReorder"].(bool); ok && !below {
			return types.Action{
				Type:   types.ActionDone,
				Reason: fmt.Sprintf("%s is above its reorder level; no order needed", item),
			}, nil
		}
	}

	find, found := lastStepFor(run, "find_suppliers")
	if !succeeded(find, found) {
		if found {
			return types.Action{
				Type:   types.ActionDone,
				Reason: fmt.Sprintf("supplier search failed: %s", find.Error),
			}, nil
		}
		return types.Action{
			Type:   types.ActionToolCall,
			Tool:   "find_suppliers",
			Inputs: marshalInputs(map[string]any{"item": item}),
			Reason: "source a supplier for the order",
		}, nil
	}

	order, ordered := lastStepFor(run, "create_purchase_order")
	if ordered {
		if order.Error == "" {
			return types.Action{
				Type:   types.ActionDone,
				Reason: "purchase order placed",
			}, nil
		}
		// Denied or failed orders are not retried automatically.
		return types.Action{
			Type:   types.ActionDone,
			Reason: fmt.Sprintf("purchase order not placed: %s", order.Error),
		}, nil
	}

	supplier := bestSupplier(find)
	if supplier == "" {
		return types.Action{
			Type:   types.ActionDone,
			Reason: fmt.Sprintf("no supplier carries %s", item),
		}, nil
	}

	quantity := trigger.SuggestedQuantity(run.Trigger)
	if quantity <= 0 {
		quantity = p.quantityFromCheck(check)
	}
	if quantity <= 0 {
		return types.Action{
			Type:     types.ActionQuestion,
			Question: fmt.Sprintf("How many units of %s should be ordered?", item),
			Reason:   "no quantity could be derived",
		}, nil
	}

	return types.Action{
		Type: types.ActionToolCall,
		Tool: "create_purchase_order",
		Inputs: marshalInputs(map[string]any{
			"item":     item,
			"supplier": supplier,
			"quantity": quantity,
		}),
		Reason: fmt.Sprintf("restock %s from %s", item, supplier),
	}, nil
}

func (p *RestockPlanner) item(run *types.RunState) string {
	if item := run.Trigger.DetailString("item"); item != "" {
		return item
	}
	if len(run.Trigger.ItemsAffected) > 0 {
		return run.Trigger.ItemsAffected[0]
	}
	return lastAnswer(run)
}

// quantityFromCheck derives an order quantity from check_stock output when
// the trigger itself carried no consumption data.
func (p *RestockPlanner) quantityFromCheck(check types.Step) float64 {
	result := decodeResult(check)
	if result == nil {
		return 0
	}
	stock, _ := result["currentStock"].(float64)
	reorder, _ := result["reorderLevel"].(float64)
	daily, _ := result["dailyConsumption"].(float64)
	refill := reorder - stock
	if threeWeeks := 21 * daily; threeWeeks > refill {
		return threeWeeks
	}
	if refill < 0 {
		return 0
	}
	return refill
}

// bestSupplier picks the top-scored supplier from find_suppliers output.
func bestSupplier(find types.Step) string {
	result := decodeResult(find)
	if result == nil {
		return ""
	}
	suppliers, _ := result["suppliers"].([]any)
	var (
		best      string
		bestScore = -1.0
	)
	for _, raw := range suppliers {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := entry["supplier"].(string)
		score, _ := entry["score"].(float64)
		if name != "" && score > bestScore {
			best = name
			bestScore = score
		}
	}
	return best
}

// lastAnswer returns the most recent human answer recorded in the run.
func lastAnswer(run *types.RunState) string {
	for i := len(run.Steps) - 1; i >= 0; i-- {
		step := run.Steps[i]
		if step.Role == types.RoleHuman && step.Result != "" && step.Tool == "" {
			return step.Result
		}
	}
	return ""
}
