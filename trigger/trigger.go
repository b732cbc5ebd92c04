// Package trigger validates and describes incoming business events before
// they enter the processing engine.
package trigger

import (
	"fmt"
	"strings"
	"time"

	"github.com/stockpilot/trigger-engine/types"
)

// Validate checks structural requirements for a trigger. Unknown kinds are
// accepted here; the triage classifier routes them conservatively instead of
// rejecting them.
func Validate(t types.Trigger) error {
	if t.Kind == "" {
		return types.NewValidationError("kind", "required")
	}
	if t.BudgetLimit < 0 {
		return types.NewValidationError("budgetLimit", "must be non-negative")
	}
	if t.DeliveryDeadline != "" {
		if _, err := time.Parse("2006-01-02", t.DeliveryDeadline); err != nil {
			return types.NewValidationError("deliveryDeadline", "must be YYYY-MM-DD: %v", err)
		}
	}
	switch t.Kind {
	case types.KindStockoutAlert, types.KindLowStock:
		if t.DetailString("item") == "" && len(t.ItemsAffected) == 0 {
			return types.NewValidationError("details.item", "required for %s", t.Kind)
		}
		if v, ok := t.Details["current_stock"]; ok {
			if n, isNum := asNumber(v); !isNum || n < 0 {
				return types.NewValidationError("details.current_stock", "must be a non-negative number")
			}
		}
	case types.KindReorderRequest, types.KindEmergencyOrder:
		if t.DetailString("item") == "" && len(t.ItemsAffected) == 0 {
			return types.NewValidationError("details.item", "required for %s", t.Kind)
		}
	case types.KindForecastRequest:
		if t.DetailString("item") == "" {
			return types.NewValidationError("details.item", "required for %s", t.Kind)
		}
	case types.KindSupplierPromotion:
		if t.DetailString("supplier") == "" {
			return types.NewValidationError("details.supplier", "required for %s", t.Kind)
		}
	}
	return nil
}

// Normalize fills defaulted fields on a trigger. It returns a copy; the
// caller's value is not modified.
func Normalize(t types.Trigger) types.Trigger {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.TriggeredBy == "" {
		t.TriggeredBy = "system"
	}
	return t
}

// Describe renders a one-line human summary of the trigger, used in
// interrupt reasons and run transcripts.
func Describe(t types.Trigger) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s from %s", t.Kind, t.TriggeredBy)
	if item := t.DetailString("item"); item != "" {
		fmt.Fprintf(&b, ": %s", item)
	} else if len(t.ItemsAffected) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(t.ItemsAffected, ", "))
	}
	if stock, ok := asNumber(t.Details["current_stock"]); ok {
		fmt.Fprintf(&b, " (stock %.0f", stock)
		if reorder, ok := asNumber(t.Details["reorder_level"]); ok {
			fmt.Fprintf(&b, "/%.0f", reorder)
		}
		b.WriteString(")")
	}
	if t.BudgetLimit > 0 {
		fmt.Fprintf(&b, " budget $%.2f", t.BudgetLimit)
	}
	if t.DeliveryDeadline != "" {
		fmt.Fprintf(&b, " due %s", t.DeliveryDeadline)
	}
	return b.String()
}

// NewStockoutAlert builds a stockout trigger for a single item.
func NewStockoutAlert(item string, currentStock, reorderLevel, dailyConsumption float64) types.Trigger {
	return Normalize(types.Trigger{
		Kind:        types.KindStockoutAlert,
		TriggeredBy: "inventory_monitor",
		Details: map[string]any{
			"item":              item,
			"current_stock":     currentStock,
			"reorder_level":     reorderLevel,
			"daily_consumption": dailyConsumption,
		},
		ItemsAffected: []string{item},
	})
}

// NewManualCheck builds an operator-initiated status check.
func NewManualCheck(requestedBy string) types.Trigger {
	return Normalize(types.Trigger{
		Kind:        types.KindManualCheck,
		TriggeredBy: requestedBy,
	})
}

// NewScheduledCheck builds a periodic inventory sweep trigger.
func NewScheduledCheck() types.Trigger {
	return Normalize(types.Trigger{
		Kind:        types.KindScheduledCheck,
		TriggeredBy: "scheduler",
	})
}

// NewForecastRequest builds a demand forecast trigger for one item.
func NewForecastRequest(item string, horizonDays int) types.Trigger {
	return Normalize(types.Trigger{
		Kind:        types.KindForecastRequest,
		TriggeredBy: "planner",
		Details: map[string]any{
			"item":         item,
			"horizon_days": float64(horizonDays),
		},
	})
}

// DaysUntilStockout derives how many days of stock remain, or -1 when the
// trigger carries no consumption data.
func DaysUntilStockout(t types.Trigger) float64 {
	stock, okStock := asNumber(t.Details["current_stock"])
	daily, okDaily := asNumber(t.Details["daily_consumption"])
	if !okStock || !okDaily || daily <= 0 {
		return -1
	}
	return stock / daily
}

// SuggestedQuantity derives a reorder quantity: enough to refill to the
// reorder level, and at least three weeks of consumption.
func SuggestedQuantity(t types.Trigger) float64 {
	stock, _ := asNumber(t.Details["current_stock"])
	reorder, _ := asNumber(t.Details["reorder_level"])
	daily, _ := asNumber(t.Details["daily_consumption"])
	refill := reorder - stock
	threeWeeks := 21 * daily
	if threeWeeks > refill {
		return threeWeeks
	}
	if refill < 0 {
		return 0
	}
	return refill
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
