package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stockpilot/trigger-engine/types"
)

type checkStockArgs struct {
	Item string `json:"item" jsonschema:"required,description=Inventory item name."`
}

// NewCheckStock reads one inventory position.
func NewCheckStock(cat *Catalog) Tool {
	return NewFuncTool(
		Definition{
			Name:        "check_stock",
			Description: "Look up current stock, reorder level, and days of supply for an item.",
			SideEffect:  types.SideEffectRead,
			JSONSchema:  schemaOf(&checkStockArgs{}),
		},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in checkStockArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid check_stock args: %w", err)
			}
			item, err := cat.Item(in.Item)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"item":             item.Name,
				"currentStock":     item.CurrentStock,
				"reorderLevel":     item.ReorderLevel,
				"dailyConsumption": item.DailyConsumption,
				"unitCost":         item.UnitCost,
				"daysOfSupply":     item.DaysOfSupply(),
				"belowReorder":     item.CurrentStock < item.ReorderLevel,
			}, nil
		},
	)
}

type updateStockArgs struct {
	Item  string  `json:"item" jsonschema:"required,description=Inventory item name."`
	Delta float64 `json:"delta" jsonschema:"required,description=Stock adjustment; positive receives stock and negative consumes it."`
}

// NewUpdateStock applies a stock adjustment. Mutating.
func NewUpdateStock(cat *Catalog) Tool {
	return NewFuncTool(
		Definition{
			Name:        "update_stock",
			Description: "Adjust the recorded stock level of an item.",
			SideEffect:  types.SideEffectMutate,
			JSONSchema:  schemaOf(&updateStockArgs{}),
		},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in updateStockArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid update_stock args: %w", err)
			}
			item, err := cat.AdjustStock(in.Item, in.Delta)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"item":         item.Name,
				"currentStock": item.CurrentStock,
			}, nil
		},
	)
}

// NewListLowStock reports every item at or below its reorder level.
func NewListLowStock(cat *Catalog) Tool {
	return NewFuncTool(
		Definition{
			Name:        "list_low_stock",
			Description: "List items whose stock is at or below the reorder level.",
			SideEffect:  types.SideEffectRead,
			JSONSchema:  schemaOf(&noArgs{}),
		},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var low []map[string]any
			for _, item := range cat.Items() {
				if item.CurrentStock <= item.ReorderLevel {
					low = append(low, map[string]any{
						"item":         item.Name,
						"currentStock": item.CurrentStock,
						"reorderLevel": item.ReorderLevel,
						"daysOfSupply": item.DaysOfSupply(),
					})
				}
			}
			return map[string]any{
				"count": len(low),
				"items": low,
			}, nil
		},
	)
}
