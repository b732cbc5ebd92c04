package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stockpilot/trigger-engine/types"
)

type salesHistoryArgs struct {
	Item string `json:"item" jsonschema:"required,description=Item to report sales for."`
	Days int    `json:"days,omitempty" jsonschema:"description=Most recent days to include; 0 returns everything."`
}

// NewSalesHistory reads daily unit sales for an item.
func NewSalesHistory(cat *Catalog) Tool {
	return NewFuncTool(
		Definition{
			Name:        "get_sales_history",
			Description: "Read daily unit sales for an item, oldest first.",
			SideEffect:  types.SideEffectRead,
			JSONSchema:  schemaOf(&salesHistoryArgs{}),
		},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in salesHistoryArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid get_sales_history args: %w", err)
			}
			history, err := cat.SalesHistory(in.Item)
			if err != nil {
				return nil, err
			}
			if in.Days > 0 && in.Days < len(history) {
				history = history[len(history)-in.Days:]
			}
			var total float64
			for _, units := range history {
				total += units
			}
			avg := 0.0
			if len(history) > 0 {
				avg = total / float64(len(history))
			}
			return map[string]any{
				"item":         in.Item,
				"days":         len(history),
				"dailySales":   history,
				"totalUnits":   total,
				"averageDaily": avg,
			}, nil
		},
	)
}

type recordSalesArgs struct {
	Item  string  `json:"item" jsonschema:"required,description=Item sold."`
	Units float64 `json:"units" jsonschema:"required,description=Units sold today."`
}

// NewRecordSales appends a day of sales and draws down stock. Mutating, but
// routine bookkeeping that never needs approval.
func NewRecordSales(cat *Catalog) Tool {
	return NewFuncTool(
		Definition{
			Name:          "record_sales",
			Description:   "Record a day of unit sales for an item and draw down stock.",
			SideEffect:    types.SideEffectMutate,
			AutoApprove:   true,
			JSONSchema:    schemaOf(&recordSalesArgs{}),
		},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in recordSalesArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid record_sales args: %w", err)
			}
			if in.Units < 0 {
				return nil, types.NewValidationError("units", "must be non-negative")
			}
			if err := cat.RecordSales(in.Item, in.Units); err != nil {
				return nil, err
			}
			item, err := cat.AdjustStock(in.Item, -in.Units)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"item":         item.Name,
				"unitsSold":    in.Units,
				"currentStock": item.CurrentStock,
			}, nil
		},
	)
}
