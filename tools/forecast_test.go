package tools

import (
	"context"
	"encoding/json"
	"math"
	"testing"
)

func TestProjectDaily_FlatSeries(t *testing.T) {
	// A flat series projects itself: moving average, smoothing, and trend
	// all agree.
	flat := []float64{3, 3, 3, 3, 3, 3, 3, 3, 3, 3}
	if got := projectDaily(flat); math.Abs(got-3) > 1e-9 {
		t.Fatalf("flat series should project 3, got %v", got)
	}
}

func TestProjectDaily_RisingTrendRaises(t *testing.T) {
	rising := []float64{1, 2, 3, 4, 5, 6, 7}
	flat := []float64{4, 4, 4, 4, 4, 4, 4}
	if projectDaily(rising) <= projectDaily(flat) {
		t.Fatal("rising series should project above a flat series with the same mean")
	}
}

func TestTrendFactor_Clamped(t *testing.T) {
	steepUp := []float64{0, 100, 200, 300}
	if got := trendFactor(steepUp); got != 1.5 {
		t.Fatalf("steep uptrend should clamp at 1.5, got %v", got)
	}
	steepDown := []float64{300, 200, 100, 0}
	if got := trendFactor(steepDown); got != 0.5 {
		t.Fatalf("steep downtrend should clamp at 0.5, got %v", got)
	}
	if got := trendFactor([]float64{7}); got != 1 {
		t.Fatalf("single point has no trend, got %v", got)
	}
}

func TestForecastDemand_StockoutRisk(t *testing.T) {
	set, _ := newTestSet(t)
	ctx := context.Background()

	// USB-C Cable holds 2 units against roughly 3/day of demand: the
	// default 7 day horizon is at risk.
	result, err := set.Execute(ctx, "forecast_demand", json.RawMessage(`{"item":"USB-C Cable"}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	out := result.(map[string]any)
	if risk, _ := out["stockoutRisk"].(bool); !risk {
		t.Fatalf("expected stockout risk for USB-C Cable: %#v", out)
	}
	if daily, _ := out["dailyForecast"].(float64); daily <= 0 {
		t.Fatalf("expected positive daily forecast: %#v", out)
	}

	// Wireless Mouse holds 45 units against ~2/day: no risk inside a week.
	result, err = set.Execute(ctx, "forecast_demand", json.RawMessage(`{"item":"Wireless Mouse","horizonDays":7}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	out = result.(map[string]any)
	if risk, _ := out["stockoutRisk"].(bool); risk {
		t.Fatalf("Wireless Mouse should not be at risk: %#v", out)
	}
}

func TestForecastDemand_UnknownItem(t *testing.T) {
	set, _ := newTestSet(t)
	if _, err := set.Execute(context.Background(), "forecast_demand", json.RawMessage(`{"item":"Flux Capacitor"}`)); err == nil {
		t.Fatal("expected error for unknown item")
	}
}

func TestFindSuppliers_LearnedPreferenceReorders(t *testing.T) {
	set, _ := newTestSet(t)
	ctx := context.Background()

	result, err := set.Execute(ctx, "find_suppliers", json.RawMessage(`{"item":"USB-C Cable"}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	out := result.(map[string]any)
	suppliers, _ := out["suppliers"].([]map[string]any)
	if len(suppliers) != 3 {
		t.Fatalf("expected 3 suppliers, got %#v", out)
	}
	// Without preferences the score equals the rating.
	first := suppliers[0]
	if first["supplier"] != "TechSupply Co" || first["score"] != 4.5 {
		t.Fatalf("unexpected top supplier: %#v", first)
	}
}
