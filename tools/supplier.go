package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stockpilot/trigger-engine/memory"
	"github.com/stockpilot/trigger-engine/types"
)

type findSuppliersArgs struct {
	Item string `json:"item" jsonschema:"required,description=Item to source."`
}

// NewFindSuppliers lists suppliers carrying an item, best rating first. When
// a preference store is attached, learned supplier weightings reorder the
// result.
func NewFindSuppliers(cat *Catalog, prefs memory.Store) Tool {
	return NewFuncTool(
		Definition{
			Name:        "find_suppliers",
			Description: "Find suppliers that carry an item, ranked by rating and learned preference.",
			SideEffect:  types.SideEffectRead,
			JSONSchema:  schemaOf(&findSuppliersArgs{}),
		},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in findSuppliersArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid find_suppliers args: %w", err)
			}
			suppliers := cat.SuppliersFor(in.Item)
			if len(suppliers) == 0 {
				return nil, &types.DomainError{Op: "find_suppliers", Reason: fmt.Sprintf("no suppliers carry %q", in.Item)}
			}
			out := make([]map[string]any, 0, len(suppliers))
			for _, s := range suppliers {
				score := s.Rating
				if prefs != nil {
					score += memory.ValueOr(ctx, prefs, memory.NamespaceSupplier, s.Name, 0)
				}
				out = append(out, map[string]any{
					"supplier":       s.Name,
					"rating":         s.Rating,
					"leadTimeDays":   s.LeadTimeDays,
					"costMultiplier": s.CostMultiplier,
					"score":          score,
				})
			}
			return map[string]any{
				"item":      in.Item,
				"suppliers": out,
			}, nil
		},
	)
}

type supplierQuoteArgs struct {
	Item     string  `json:"item" jsonschema:"required,description=Item to quote."`
	Supplier string  `json:"supplier" jsonschema:"required,description=Supplier name."`
	Quantity float64 `json:"quantity" jsonschema:"required,description=Units to quote for."`
}

// NewSupplierQuote prices an order with a specific supplier.
func NewSupplierQuote(cat *Catalog) Tool {
	return NewFuncTool(
		Definition{
			Name:        "get_supplier_quote",
			Description: "Get a price quote for ordering a quantity of an item from a supplier.",
			SideEffect:  types.SideEffectRead,
			JSONSchema:  schemaOf(&supplierQuoteArgs{}),
		},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in supplierQuoteArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid get_supplier_quote args: %w", err)
			}
			if in.Quantity <= 0 {
				return nil, types.NewValidationError("quantity", "must be positive")
			}
			item, err := cat.Item(in.Item)
			if err != nil {
				return nil, err
			}
			supplier, err := cat.Supplier(in.Supplier)
			if err != nil {
				return nil, err
			}
			unitCost := item.UnitCost * supplier.CostMultiplier
			return map[string]any{
				"item":         item.Name,
				"supplier":     supplier.Name,
				"quantity":     in.Quantity,
				"unitCost":     unitCost,
				"total":        unitCost * in.Quantity,
				"leadTimeDays": supplier.LeadTimeDays,
			}, nil
		},
	)
}
