package policy

import (
	"context"
	"fmt"

	"github.com/stockpilot/trigger-engine/tools"
	"github.com/stockpilot/trigger-engine/types"
)

// ForecastPlanner handles demand planning triggers: read sales history,
// project demand, and notify operators when the projection shows stockout
// risk inside the horizon.
type ForecastPlanner struct{}

func (p *ForecastPlanner) Next(ctx context.Context, run *types.RunState, ts *tools.Set) (types.Action, error) {
	item := run.Trigger.DetailString("item")
	if item == "" && len(run.Trigger.ItemsAffected) > 0 {
		item = run.Trigger.ItemsAffected[0]
	}
	if item == "" {
		if answer := lastAnswer(run); answer != "" {
			item = answer
		} else {
			return types.Action{
				Type:     types.ActionQuestion,
				Question: "Which item should be forecast?",
				Reason:   "trigger names no item",
			}, nil
		}
	}

	horizon := int(run.Trigger.DetailNumber("horizon_days"))
	if horizon <= 0 {
		horizon = 7
	}

	history, read := lastStepFor(run, "get_sales_history")
	if !read {
		return types.Action{
			Type:   types.ActionToolCall,
			Tool:   "get_sales_history",
			Inputs: marshalInputs(map[string]any{"item": item}),
			Reason: "gather demand data",
		}, nil
	}
	if history.Error != "" {
		return types.Action{
			Type:   types.ActionDone,
			Reason: "no sales history available: " + history.Error,
		}, nil
	}

	forecast, forecasted := lastStepFor(run, "forecast_demand")
	if !forecasted {
		return types.Action{
			Type: types.ActionToolCall,
			Tool: "forecast_demand",
			Inputs: marshalInputs(map[string]any{
				"item":        item,
				"horizonDays": horizon,
			}),
			Reason: "project demand over the horizon",
		}, nil
	}
	if forecast.Error != "" {
		return types.Action{
			Type:   types.ActionDone,
			Reason: "forecast failed: " + forecast.Error,
		}, nil
	}

	result := decodeResult(forecast)
	risk, _ := result["stockoutRisk"].(bool)
	if risk {
		if _, notified := lastStepFor(run, "send_notification"); !notified {
			daily, _ := result["dailyForecast"].(float64)
			return types.Action{
				Type: types.ActionToolCall,
				Tool: "send_notification",
				Inputs: marshalInputs(map[string]any{
					"message": fmt.Sprintf("%s projected to stock out within %d days at %.1f units/day", item, horizon, daily),
				}),
				Reason: "flag projected stockout",
			}, nil
		}
	}
	return types.Action{
		Type:   types.ActionDone,
		Reason: fmt.Sprintf("forecast complete for %s", item),
	}, nil
}
