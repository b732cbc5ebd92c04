package trigger

import (
	"strings"
	"testing"

	"github.com/stockpilot/trigger-engine/types"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		trigger types.Trigger
		wantErr string
	}{
		{
			name:    "missing kind",
			trigger: types.Trigger{},
			wantErr: "kind",
		},
		{
			name:    "negative budget",
			trigger: types.Trigger{Kind: types.KindManualCheck, BudgetLimit: -5},
			wantErr: "budgetLimit",
		},
		{
			name:    "malformed deadline",
			trigger: types.Trigger{Kind: types.KindManualCheck, DeliveryDeadline: "tomorrow"},
			wantErr: "deliveryDeadline",
		},
		{
			name:    "stockout without item",
			trigger: types.Trigger{Kind: types.KindStockoutAlert},
			wantErr: "details.item",
		},
		{
			name: "stockout with negative stock",
			trigger: types.Trigger{
				Kind:    types.KindStockoutAlert,
				Details: map[string]any{"item": "Webcam", "current_stock": -2.0},
			},
			wantErr: "details.current_stock",
		},
		{
			name:    "forecast without item",
			trigger: types.Trigger{Kind: types.KindForecastRequest},
			wantErr: "details.item",
		},
		{
			name:    "promotion without supplier",
			trigger: types.Trigger{Kind: types.KindSupplierPromotion},
			wantErr: "details.supplier",
		},
		{
			name:    "manual check minimal",
			trigger: types.Trigger{Kind: types.KindManualCheck},
		},
		{
			name:    "unknown kind accepted",
			trigger: types.Trigger{Kind: "customs_hold"},
		},
		{
			name: "stockout via items affected",
			trigger: types.Trigger{
				Kind:          types.KindStockoutAlert,
				ItemsAffected: []string{"Webcam"},
			},
		},
		{
			name: "well formed deadline",
			trigger: types.Trigger{
				Kind:             types.KindEmergencyOrder,
				Details:          map[string]any{"item": "Webcam"},
				DeliveryDeadline: "2026-09-15",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.trigger)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q should name field %q", err, tt.wantErr)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize(types.Trigger{Kind: types.KindManualCheck})
	if got.CreatedAt.IsZero() {
		t.Fatal("CreatedAt not defaulted")
	}
	if got.TriggeredBy != "system" {
		t.Fatalf("TriggeredBy not defaulted: %q", got.TriggeredBy)
	}

	preset := Normalize(types.Trigger{Kind: types.KindManualCheck, TriggeredBy: "alice"})
	if preset.TriggeredBy != "alice" {
		t.Fatalf("explicit TriggeredBy overwritten: %q", preset.TriggeredBy)
	}
}

func TestDaysUntilStockout(t *testing.T) {
	trig := NewStockoutAlert("USB-C Cable", 6, 25, 3)
	if days := DaysUntilStockout(trig); days != 2 {
		t.Fatalf("expected 2 days, got %v", days)
	}
	if days := DaysUntilStockout(types.Trigger{Kind: types.KindStockoutAlert}); days != -1 {
		t.Fatalf("expected -1 without consumption data, got %v", days)
	}
}

func TestSuggestedQuantity(t *testing.T) {
	// Three weeks of consumption dominates the refill amount.
	trig := NewStockoutAlert("USB-C Cable", 2, 25, 3)
	if qty := SuggestedQuantity(trig); qty != 63 {
		t.Fatalf("expected 63 units, got %v", qty)
	}

	// With no consumption data the refill to reorder level wins.
	refill := types.Trigger{
		Kind: types.KindLowStock,
		Details: map[string]any{
			"current_stock": 5.0,
			"reorder_level": 20.0,
		},
	}
	if qty := SuggestedQuantity(refill); qty != 15 {
		t.Fatalf("expected 15 units, got %v", qty)
	}

	// Nothing derivable yields zero.
	if qty := SuggestedQuantity(types.Trigger{Kind: types.KindLowStock}); qty != 0 {
		t.Fatalf("expected 0 units, got %v", qty)
	}
}

func TestDescribe(t *testing.T) {
	trig := NewStockoutAlert("Webcam", 4, 12, 1.5)
	trig.BudgetLimit = 500
	got := Describe(trig)
	for _, want := range []string{"stockout_alert", "Webcam", "stock 4/12", "$500.00"} {
		if !strings.Contains(got, want) {
			t.Fatalf("description %q missing %q", got, want)
		}
	}
}
