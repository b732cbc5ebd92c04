// Package triage assigns an urgency tier and priority to incoming triggers.
// Classification is deterministic rule evaluation over the trigger payload,
// optionally dampened by learned preferences. The learned bias can only
// lower a verdict, never raise one.
package triage

import (
	"context"
	"fmt"

	"github.com/stockpilot/trigger-engine/memory"
	"github.com/stockpilot/trigger-engine/trigger"
	"github.com/stockpilot/trigger-engine/types"
)

// Bias entries below this value, with at least minBiasUpdates observations,
// lower the verdict one step.
const (
	biasThreshold  = -0.5
	minBiasUpdates = 3
)

type Classifier struct {
	mem memory.Store
}

type Option func(*Classifier)

// WithMemory attaches a preference store whose triage entries dampen
// verdicts for kinds humans have repeatedly dismissed.
func WithMemory(store memory.Store) Option {
	return func(c *Classifier) {
		c.mem = store
	}
}

func New(opts ...Option) *Classifier {
	c := &Classifier{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify produces the triage verdict for a trigger. It never fails:
// unknown kinds route to a conservative alert so nothing is silently
// dropped.
func (c *Classifier) Classify(ctx context.Context, t types.Trigger) types.Classification {
	verdict := classifyByRules(t)

	if c.mem != nil {
		entry, err := c.mem.Get(ctx, memory.NamespaceTriage, string(t.Kind))
		if err == nil && entry.Updates >= minBiasUpdates && entry.Value <= biasThreshold {
			lowered := types.Classification{
				Tier:      types.LowerTier(verdict.Tier),
				Priority:  types.LowerPriority(verdict.Priority),
				Rationale: verdict.Rationale + "; lowered by learned preference",
			}
			verdict = lowered
		}
	}
	return verdict
}

func classifyByRules(t types.Trigger) types.Classification {
	switch t.Kind {
	case types.KindStockoutAlert, types.KindLowStock:
		return classifyStock(t)
	case types.KindEmergencyOrder:
		return types.Classification{
			Tier:      types.TierActionRequired,
			Priority:  types.PriorityCritical,
			Rationale: "emergency order requires immediate action",
		}
	case types.KindReorderRequest:
		return types.Classification{
			Tier:      types.TierActionRequired,
			Priority:  types.PriorityMedium,
			Rationale: "reorder request requires purchasing action",
		}
	case types.KindSeasonalPrep:
		return types.Classification{
			Tier:      types.TierAlert,
			Priority:  types.PriorityMedium,
			Rationale: "seasonal preparation window approaching",
		}
	case types.KindForecastRequest:
		return types.Classification{
			Tier:      types.TierAlert,
			Priority:  types.PriorityMedium,
			Rationale: "demand forecast requested",
		}
	case types.KindBudgetCycle:
		return types.Classification{
			Tier:      types.TierAlert,
			Priority:  types.PriorityMedium,
			Rationale: "budget cycle review due",
		}
	case types.KindSupplierPromotion:
		return types.Classification{
			Tier:      types.TierMonitor,
			Priority:  types.PriorityLow,
			Rationale: "supplier promotion is informational",
		}
	case types.KindSalesUpdate:
		return types.Classification{
			Tier:      types.TierMonitor,
			Priority:  types.PriorityLow,
			Rationale: "routine sales update",
		}
	case types.KindManualCheck:
		return types.Classification{
			Tier:      types.TierMonitor,
			Priority:  types.PriorityLow,
			Rationale: "operator-initiated status check",
		}
	case types.KindScheduledCheck:
		return types.Classification{
			Tier:      types.TierMonitor,
			Priority:  types.PriorityLow,
			Rationale: "scheduled inventory sweep",
		}
	default:
		return types.Classification{
			Tier:      types.TierAlert,
			Priority:  types.PriorityMedium,
			Rationale: fmt.Sprintf("unknown trigger kind %q routed for review", t.Kind),
		}
	}
}

// classifyStock grades stock triggers by days of supply remaining when
// consumption data is present, falling back to the stock/reorder ratio.
func classifyStock(t types.Trigger) types.Classification {
	if days := trigger.DaysUntilStockout(t); days >= 0 {
		switch {
		case days <= 1:
			return types.Classification{
				Tier:      types.TierActionRequired,
				Priority:  types.PriorityCritical,
				Rationale: fmt.Sprintf("stockout in %.1f days", days),
			}
		case days <= 3:
			return types.Classification{
				Tier:      types.TierActionRequired,
				Priority:  types.PriorityHigh,
				Rationale: fmt.Sprintf("stockout in %.1f days", days),
			}
		case days <= 7:
			return types.Classification{
				Tier:      types.TierAlert,
				Priority:  types.PriorityMedium,
				Rationale: fmt.Sprintf("stockout in %.1f days", days),
			}
		default:
			return types.Classification{
				Tier:      types.TierMonitor,
				Priority:  types.PriorityLow,
				Rationale: fmt.Sprintf("%.1f days of stock remain", days),
			}
		}
	}

	stock := t.DetailNumber("current_stock")
	reorder := t.DetailNumber("reorder_level")
	if reorder > 0 {
		ratio := stock / reorder
		switch {
		case ratio <= 0.2:
			return types.Classification{
				Tier:      types.TierActionRequired,
				Priority:  types.PriorityCritical,
				Rationale: fmt.Sprintf("stock at %.0f%% of reorder level", ratio*100),
			}
		case ratio <= 0.5:
			return types.Classification{
				Tier:      types.TierActionRequired,
				Priority:  types.PriorityHigh,
				Rationale: fmt.Sprintf("stock at %.0f%% of reorder level", ratio*100),
			}
		case ratio <= 1.0:
			return types.Classification{
				Tier:      types.TierAlert,
				Priority:  types.PriorityMedium,
				Rationale: fmt.Sprintf("stock at %.0f%% of reorder level", ratio*100),
			}
		}
	}
	return types.Classification{
		Tier:      types.TierAlert,
		Priority:  types.PriorityMedium,
		Rationale: "low stock reported without consumption data",
	}
}
