package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stockpilot/trigger-engine/types"
)

type notifyArgs struct {
	Channel string `json:"channel,omitempty" jsonschema:"description=Delivery channel; defaults to ops."`
	Message string `json:"message" jsonschema:"required,description=Notification text."`
}

// NewSendNotification delivers a message to operators. Mutating in the sense
// that it reaches humans, but never gated behind approval.
func NewSendNotification(cat *Catalog) Tool {
	return NewFuncTool(
		Definition{
			Name:          "send_notification",
			Description:   "Send a notification message to the operations channel.",
			SideEffect:    types.SideEffectMutate,
			AutoApprove:   true,
			JSONSchema:    schemaOf(&notifyArgs{}),
		},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			var in notifyArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("invalid send_notification args: %w", err)
			}
			if strings.TrimSpace(in.Message) == "" {
				return nil, types.NewValidationError("message", "required")
			}
			channel := in.Channel
			if channel == "" {
				channel = "ops"
			}
			cat.Notify(fmt.Sprintf("[%s] %s", channel, in.Message))
			return map[string]any{
				"channel":   channel,
				"delivered": true,
			}, nil
		},
	)
}

// NewInventoryReport summarizes the whole catalog for status checks.
func NewInventoryReport(cat *Catalog) Tool {
	return NewFuncTool(
		Definition{
			Name:        "generate_inventory_report",
			Description: "Summarize stock levels, low-stock items, and open notifications.",
			SideEffect:  types.SideEffectRead,
			JSONSchema:  schemaOf(&noArgs{}),
		},
		func(ctx context.Context, args json.RawMessage) (any, error) {
			items := cat.Items()
			var low int
			lines := make([]string, 0, len(items))
			for _, item := range items {
				status := "ok"
				if item.CurrentStock <= item.ReorderLevel {
					status = "low"
					low++
				}
				lines = append(lines, fmt.Sprintf("%s: %.0f units (%s)", item.Name, item.CurrentStock, status))
			}
			return map[string]any{
				"itemCount":     len(items),
				"lowStock":      low,
				"lines":         lines,
				"notifications": len(cat.Notifications()),
			}, nil
		},
	)
}
