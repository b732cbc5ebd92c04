package tools

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stockpilot/trigger-engine/memory"
	"github.com/stockpilot/trigger-engine/types"
)

func newTestSet(t *testing.T) (*Set, *Catalog) {
	t.Helper()
	cat := NewCatalog()
	set, err := BuildSelection(Deps{Catalog: cat, Memory: memory.NewInMemoryStore()}, []string{"@all"})
	if err != nil {
		t.Fatalf("BuildSelection failed: %v", err)
	}
	return set, cat
}

func TestBuildSelection_AllBundle(t *testing.T) {
	set, _ := newTestSet(t)

	for _, name := range []string{
		"check_stock", "update_stock", "list_low_stock",
		"find_suppliers", "get_supplier_quote",
		"create_purchase_order", "get_order_status", "cancel_purchase_order",
		"get_sales_history", "record_sales", "forecast_demand",
		"send_notification", "generate_inventory_report",
	} {
		if _, ok := set.Get(name); !ok {
			t.Fatalf("tool %q missing from @all selection", name)
		}
	}
}

func TestBuildSelection_EveryToolCarriesAnObjectSchema(t *testing.T) {
	set, _ := newTestSet(t)

	// Tools with no parameters still derive a schema from a named type;
	// the reflector cannot expand an anonymous one.
	for _, def := range set.Definitions() {
		if def.JSONSchema == nil {
			t.Fatalf("tool %q has no input schema", def.Name)
		}
		if typ, _ := def.JSONSchema["type"].(string); typ != "object" {
			t.Fatalf("tool %q schema is not an object: %#v", def.Name, def.JSONSchema)
		}
	}
}

func TestBuildSelection_ApprovalFlags(t *testing.T) {
	set, _ := newTestSet(t)

	defs := map[string]Definition{}
	for _, def := range set.Definitions() {
		defs[def.Name] = def
	}
	if !defs["send_notification"].AutoApprove || !defs["record_sales"].AutoApprove {
		t.Fatal("notification and sales tools should be exempt from approval")
	}
	if defs["create_purchase_order"].AutoApprove {
		t.Fatal("order placement must not be exempt from approval")
	}
	if !defs["cancel_purchase_order"].RequireApproval {
		t.Fatal("cancelling an order must always require approval")
	}
}

func TestBuildSelection_Bundle(t *testing.T) {
	cat := NewCatalog()
	set, err := BuildSelection(Deps{Catalog: cat}, []string{"@purchasing"})
	if err != nil {
		t.Fatalf("BuildSelection failed: %v", err)
	}
	if _, ok := set.Get("create_purchase_order"); !ok {
		t.Fatal("purchasing bundle missing create_purchase_order")
	}
	if _, ok := set.Get("forecast_demand"); ok {
		t.Fatal("purchasing bundle should not include forecast_demand")
	}
}

func TestBuildSelection_UnknownEntries(t *testing.T) {
	cat := NewCatalog()
	if _, err := BuildSelection(Deps{Catalog: cat}, []string{"teleport_stock"}); err == nil {
		t.Fatal("expected error for unknown tool")
	}
	if _, err := BuildSelection(Deps{Catalog: cat}, []string{"@warehouse"}); err == nil {
		t.Fatal("expected error for unknown bundle")
	}
}

func TestSet_ExecuteValidatesArgs(t *testing.T) {
	set, _ := newTestSet(t)
	ctx := context.Background()

	// Missing the required item field.
	_, err := set.Execute(ctx, "check_stock", json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected schema validation error")
	}
	var verr *types.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}

	result, err := set.Execute(ctx, "check_stock", json.RawMessage(`{"item":"USB-C Cable"}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	out, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result shape: %T", result)
	}
	if below, _ := out["belowReorder"].(bool); !below {
		t.Fatalf("USB-C Cable should be below its reorder level: %#v", out)
	}
}

func TestSet_EstimateValue(t *testing.T) {
	set, _ := newTestSet(t)

	// 100 units of Webcam at catalog cost $55 with TechSupply's 1.0
	// multiplier.
	args := json.RawMessage(`{"item":"Webcam","supplier":"TechSupply Co","quantity":100}`)
	if got := set.EstimateValue("create_purchase_order", args); got != 5500 {
		t.Fatalf("expected estimate 5500, got %v", got)
	}

	// Global Components discounts to 0.85.
	discounted := json.RawMessage(`{"item":"Webcam","supplier":"Global Components","quantity":100}`)
	if got := set.EstimateValue("create_purchase_order", discounted); math.Abs(got-4675) > 1e-6 {
		t.Fatalf("expected estimate 4675, got %v", got)
	}

	// Read-only tools have no price.
	if got := set.EstimateValue("check_stock", json.RawMessage(`{"item":"Webcam"}`)); got != 0 {
		t.Fatalf("expected 0 for read tool, got %v", got)
	}

	// Garbage inputs estimate to zero instead of failing.
	if got := set.EstimateValue("create_purchase_order", json.RawMessage(`{"quantity":"ten"}`)); got != 0 {
		t.Fatalf("expected 0 for unparseable args, got %v", got)
	}
}

func TestSet_MutatingDefinitions(t *testing.T) {
	set, _ := newTestSet(t)

	mutating := map[string]bool{}
	for _, def := range set.Definitions() {
		mutating[def.Name] = def.Mutating()
	}
	if !mutating["create_purchase_order"] || !mutating["update_stock"] {
		t.Fatalf("order and stock tools must be mutating: %#v", mutating)
	}
	if mutating["check_stock"] || mutating["forecast_demand"] {
		t.Fatalf("read tools must not be mutating: %#v", mutating)
	}
}

func TestSet_ExecuteUnknownTool(t *testing.T) {
	set, _ := newTestSet(t)
	if _, err := set.Execute(context.Background(), "nope", nil); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}
