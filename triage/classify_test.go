package triage

import (
	"context"
	"strings"
	"testing"

	"github.com/stockpilot/trigger-engine/memory"
	"github.com/stockpilot/trigger-engine/types"
)

func TestClassify_KindRules(t *testing.T) {
	c := New()
	ctx := context.Background()

	tests := []struct {
		name     string
		kind     types.TriggerKind
		tier     types.UrgencyTier
		priority types.Priority
	}{
		{"emergency order", types.KindEmergencyOrder, types.TierActionRequired, types.PriorityCritical},
		{"reorder request", types.KindReorderRequest, types.TierActionRequired, types.PriorityMedium},
		{"seasonal prep", types.KindSeasonalPrep, types.TierAlert, types.PriorityMedium},
		{"forecast request", types.KindForecastRequest, types.TierAlert, types.PriorityMedium},
		{"budget cycle", types.KindBudgetCycle, types.TierAlert, types.PriorityMedium},
		{"supplier promotion", types.KindSupplierPromotion, types.TierMonitor, types.PriorityLow},
		{"sales update", types.KindSalesUpdate, types.TierMonitor, types.PriorityLow},
		{"manual check", types.KindManualCheck, types.TierMonitor, types.PriorityLow},
		{"scheduled check", types.KindScheduledCheck, types.TierMonitor, types.PriorityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(ctx, types.Trigger{Kind: tt.kind})
			if got.Tier != tt.tier || got.Priority != tt.priority {
				t.Fatalf("got %s/%s, want %s/%s", got.Tier, got.Priority, tt.tier, tt.priority)
			}
			if got.Rationale == "" {
				t.Fatal("verdict has no rationale")
			}
		})
	}
}

func TestClassify_UnknownKindRoutedForReview(t *testing.T) {
	c := New()
	got := c.Classify(context.Background(), types.Trigger{Kind: "warehouse_fire"})
	if got.Tier != types.TierAlert || got.Priority != types.PriorityMedium {
		t.Fatalf("unknown kind should be alert/medium, got %s/%s", got.Tier, got.Priority)
	}
	if !strings.Contains(got.Rationale, "warehouse_fire") {
		t.Fatalf("rationale should name the unrecognized kind: %q", got.Rationale)
	}
}

func TestClassify_StockoutGradedByDays(t *testing.T) {
	c := New()
	ctx := context.Background()

	tests := []struct {
		name     string
		stock    float64
		daily    float64
		tier     types.UrgencyTier
		priority types.Priority
	}{
		{"under a day left", 2, 3, types.TierActionRequired, types.PriorityCritical},
		{"under three days", 5, 2, types.TierActionRequired, types.PriorityHigh},
		{"under a week", 10, 2, types.TierAlert, types.PriorityMedium},
		{"comfortable", 100, 2, types.TierMonitor, types.PriorityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(ctx, types.Trigger{
				Kind: types.KindStockoutAlert,
				Details: map[string]any{
					"item":              "USB-C Cable",
					"current_stock":     tt.stock,
					"daily_consumption": tt.daily,
				},
			})
			if got.Tier != tt.tier || got.Priority != tt.priority {
				t.Fatalf("got %s/%s, want %s/%s (%s)", got.Tier, got.Priority, tt.tier, tt.priority, got.Rationale)
			}
		})
	}
}

func TestClassify_StockoutFallsBackToRatio(t *testing.T) {
	c := New()
	// No consumption data: 4/25 = 16% of reorder level.
	got := c.Classify(context.Background(), types.Trigger{
		Kind: types.KindLowStock,
		Details: map[string]any{
			"current_stock": 4.0,
			"reorder_level": 25.0,
		},
	})
	if got.Tier != types.TierActionRequired || got.Priority != types.PriorityCritical {
		t.Fatalf("got %s/%s, want action_required/critical (%s)", got.Tier, got.Priority, got.Rationale)
	}
}

func TestClassify_StockoutWithoutData(t *testing.T) {
	c := New()
	got := c.Classify(context.Background(), types.Trigger{Kind: types.KindLowStock})
	if got.Tier != types.TierAlert || got.Priority != types.PriorityMedium {
		t.Fatalf("bare low stock should be alert/medium, got %s/%s", got.Tier, got.Priority)
	}
}

func TestClassify_LearnedBiasLowersVerdict(t *testing.T) {
	mem := memory.NewInMemoryStore()
	ctx := context.Background()

	// Three dismissals push the bias below the dampening threshold.
	for i := 0; i < 3; i++ {
		if _, err := mem.Observe(ctx, memory.NamespaceTriage, string(types.KindReorderRequest), -1); err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
	}

	c := New(WithMemory(mem))
	got := c.Classify(ctx, types.Trigger{Kind: types.KindReorderRequest})
	if got.Tier != types.TierAlert || got.Priority != types.PriorityLow {
		t.Fatalf("expected lowered verdict alert/low, got %s/%s", got.Tier, got.Priority)
	}
	if !strings.Contains(got.Rationale, "lowered by learned preference") {
		t.Fatalf("rationale should record the dampening: %q", got.Rationale)
	}
}

func TestClassify_BiasRequiresEnoughObservations(t *testing.T) {
	mem := memory.NewInMemoryStore()
	ctx := context.Background()

	// Two dismissals are not enough to dampen.
	for i := 0; i < 2; i++ {
		if _, err := mem.Observe(ctx, memory.NamespaceTriage, string(types.KindReorderRequest), -1); err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
	}

	c := New(WithMemory(mem))
	got := c.Classify(ctx, types.Trigger{Kind: types.KindReorderRequest})
	if got.Tier != types.TierActionRequired || got.Priority != types.PriorityMedium {
		t.Fatalf("verdict should be unchanged, got %s/%s", got.Tier, got.Priority)
	}
}

func TestClassify_BiasNeverRaises(t *testing.T) {
	mem := memory.NewInMemoryStore()
	ctx := context.Background()

	// Strong positive signal must not escalate a monitor verdict.
	for i := 0; i < 5; i++ {
		if _, err := mem.Observe(ctx, memory.NamespaceTriage, string(types.KindManualCheck), 1); err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
	}

	c := New(WithMemory(mem))
	got := c.Classify(ctx, types.Trigger{Kind: types.KindManualCheck})
	if got.Tier != types.TierMonitor || got.Priority != types.PriorityLow {
		t.Fatalf("positive bias must not raise the verdict, got %s/%s", got.Tier, got.Priority)
	}
}
