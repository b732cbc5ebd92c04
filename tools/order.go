package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stockpilot/trigger-engine/types"
)

type createOrderArgs struct {
	Item     string  `json:"item" jsonschema:"required,description=Item to order."`
	Supplier string  `json:"supplier" jsonschema:"required,description=Supplier to order from."`
	Quantity float64 `json:"quantity" jsonschema:"required,description=Units to order."`
	UnitCost float64 `json:"unitCost,omitempty" jsonschema:"description=Override unit cost; defaults to the supplier-adjusted catalog cost."`
}

// purchaseOrderTool creates purchase orders. It estimates the monetary value
// of a proposed call so the engine can gate expensive orders behind
// approval.
type purchaseOrderTool struct {
	cat *Catalog
}

// NewCreatePurchaseOrder places an order with a supplier. Mutating.
func NewCreatePurchaseOrder(cat *Catalog) Tool {
	return &purchaseOrderTool{cat: cat}
}

func (t *purchaseOrderTool) Definition() Definition {
	return Definition{
		Name:        "create_purchase_order",
		Description: "Place a purchase order for an item with a supplier.",
		SideEffect:  types.SideEffectMutate,
		JSONSchema:  schemaOf(&createOrderArgs{}),
	}
}

func (t *purchaseOrderTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var in createOrderArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid create_purchase_order args: %w", err)
	}
	if in.Quantity <= 0 {
		return nil, types.NewValidationError("quantity", "must be positive")
	}
	unitCost, err := t.resolveUnitCost(in)
	if err != nil {
		return nil, err
	}
	order, err := t.cat.CreateOrder(in.Item, in.Supplier, in.Quantity, unitCost)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// EstimateValue prices the proposed order without placing it. Unparseable
// inputs estimate to 0 and fail later at execution.
func (t *purchaseOrderTool) EstimateValue(args json.RawMessage) float64 {
	var in createOrderArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return 0
	}
	unitCost, err := t.resolveUnitCost(in)
	if err != nil {
		return 0
	}
	return in.Quantity * unitCost
}

func (t *purchaseOrderTool) resolveUnitCost(in createOrderArgs) (float64, error) {
	if in.UnitCost > 0 {
		return in.UnitCost, nil
	}
	item, err := t.cat.Item(in.Item)
	if err != nil {
		return 0, err
	}
	cost := item.UnitCost
	if in.Supplier != "" {
		if supplier, err := t.cat.Supplier(in.Supplier); err == nil {
			cost *= supplier.CostMultiplier
		}
	}
	return cost, nil
}

type orderStatusArgs struct {
	OrderID string `json:"orderId" jsonschema:"required,description=Purchase order id."`
}

// NewOrderStatus reads a purchase order.
func NewOrderStatus(cat *Catalog) Tool {
	return NewFuncTool(
		Definition{
			Name:        "get_order_status",
			Description: "Look up a purchase order by id.",
			SideEffect:  types.SideEffectRead,
			JSONSchema:  schemaOf(&orderStatusArgs{}),
		},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in orderStatusArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid get_order_status args: %w", err)
			}
			return cat.Order(in.OrderID)
		},
	)
}

type cancelOrderArgs struct {
	OrderID string `json:"orderId" jsonschema:"required,description=Purchase order id to cancel."`
}

// NewCancelPurchaseOrder cancels a placed order. Mutating; cancelling a
// commitment to a supplier is always a human call, whatever the amount.
func NewCancelPurchaseOrder(cat *Catalog) Tool {
	return NewFuncTool(
		Definition{
			Name:            "cancel_purchase_order",
			Description:     "Cancel a placed purchase order.",
			SideEffect:      types.SideEffectMutate,
			RequireApproval: true,
			JSONSchema:      schemaOf(&cancelOrderArgs{}),
		},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in cancelOrderArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid cancel_purchase_order args: %w", err)
			}
			return cat.CancelOrder(in.OrderID)
		},
	)
}
