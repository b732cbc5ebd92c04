package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/stockpilot/trigger-engine/types"
)

const (
	movingAverageWindow = 7
	smoothingAlpha      = 0.3
	trendWeight         = 0.1
)

type forecastArgs struct {
	Item        string `json:"item" jsonschema:"required,description=Item to forecast."`
	HorizonDays int    `json:"horizonDays,omitempty" jsonschema:"description=Days ahead to project; defaults to 7."`
}

// NewForecastDemand projects demand for an item from its sales history. The
// projection blends a moving average with exponential smoothing and scales
// by the recent trend.
func NewForecastDemand(cat *Catalog) Tool {
	return NewFuncTool(
		Definition{
			Name:        "forecast_demand",
			Description: "Project daily demand for an item over a horizon from sales history.",
			SideEffect:  types.SideEffectRead,
			JSONSchema:  schemaOf(&forecastArgs{}),
		},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in forecastArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid forecast_demand args: %w", err)
			}
			if in.HorizonDays <= 0 {
				in.HorizonDays = 7
			}
			history, err := cat.SalesHistory(in.Item)
			if err != nil {
				return nil, err
			}
			if len(history) == 0 {
				return nil, &types.DomainError{Op: "forecast_demand", Reason: fmt.Sprintf("no sales history for %q", in.Item)}
			}

			daily := projectDaily(history)
			projected := daily * float64(in.HorizonDays)

			item, _ := cat.Item(in.Item)
			daysOfSupply := -1.0
			if daily > 0 {
				daysOfSupply = item.CurrentStock / daily
			}

			return map[string]any{
				"item":           in.Item,
				"horizonDays":    in.HorizonDays,
				"dailyForecast":  round2(daily),
				"projectedUnits": round2(projected),
				"currentStock":   item.CurrentStock,
				"daysOfSupply":   round2(daysOfSupply),
				"stockoutRisk":   daysOfSupply >= 0 && daysOfSupply < float64(in.HorizonDays),
			}, nil
		},
	)
}

// projectDaily estimates next-day demand from a daily sales series.
func projectDaily(history []float64) float64 {
	window := history
	if len(window) > movingAverageWindow {
		window = window[len(window)-movingAverageWindow:]
	}
	var sum float64
	for _, v := range window {
		sum += v
	}
	avg := sum / float64(len(window))

	smoothed := history[0]
	for _, v := range history[1:] {
		smoothed = smoothingAlpha*v + (1-smoothingAlpha)*smoothed
	}

	base := (avg + smoothed) / 2
	return base * trendFactor(history)
}

// trendFactor scales the projection by the least-squares slope of the
// series, dampened so a noisy week cannot swing the forecast wildly.
func trendFactor(history []float64) float64 {
	n := float64(len(history))
	if n < 2 {
		return 1
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range history {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 1
	}
	slope := (n*sumXY - sumX*sumY) / denom
	factor := 1 + slope*trendWeight
	if factor < 0.5 {
		factor = 0.5
	}
	if factor > 1.5 {
		factor = 1.5
	}
	return factor
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
