// Package hitl decides when a run must stop and wait for a human, and
// checks that the human's answer fits the question that was asked. It holds
// no state; the engine owns suspension and resumption.
package hitl

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stockpilot/trigger-engine/tools"
	"github.com/stockpilot/trigger-engine/types"
)

// DefaultApprovalThreshold is the purchase value above which a mutating tool
// call needs explicit approval, absent a learned preference.
const DefaultApprovalThreshold = 1000

// NeedsApproval reports whether a proposed tool call must be approved by a
// human before execution. Read-only tools never need it. A tool flagged
// RequireApproval always does, whatever else applies. The force argument
// carries per-run always-approve rules the caller resolved (emergency-order
// triggers, first order with an unknown supplier); it beats the value
// threshold but not the AutoApprove exemption. Remaining mutating calls need
// approval when their estimated value crosses the threshold; when two
// thresholds apply, callers pass the lower one.
func NeedsApproval(def tools.Definition, estimatedValue, threshold float64, force bool) bool {
	if !def.Mutating() {
		return false
	}
	if def.RequireApproval {
		return true
	}
	if def.AutoApprove {
		return false
	}
	if force {
		return true
	}
	return estimatedValue >= threshold
}

// NewApprovalInterrupt builds the interrupt for a gated tool call. The human
// may approve, deny, or edit the inputs.
func NewApprovalInterrupt(action types.Action, estimatedValue float64) *types.PendingInterrupt {
	return &types.PendingInterrupt{
		ID:             uuid.NewString(),
		Kind:           types.InterruptApproval,
		Reason:         fmt.Sprintf("tool %s requires approval (estimated value $%.2f)", action.Tool, estimatedValue),
		Tool:           action.Tool,
		Inputs:         action.Inputs,
		EstimatedValue: estimatedValue,
		Options: types.ResponseOptions{
			AllowApprove: true,
			AllowDeny:    true,
			AllowEdit:    true,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// NewQuestionInterrupt builds the interrupt for a clarifying question. The
// human may answer or dismiss it.
func NewQuestionInterrupt(question string) *types.PendingInterrupt {
	return &types.PendingInterrupt{
		ID:     uuid.NewString(),
		Kind:   types.InterruptQuestion,
		Reason: question,
		Options: types.ResponseOptions{
			AllowAnswer: true,
			AllowDeny:   true,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// NewNotifyInterrupt builds the acknowledgement interrupt raised for
// alert-tier triggers before any planning happens. The human may acknowledge
// it or dismiss the trigger entirely.
func NewNotifyInterrupt(summary string) *types.PendingInterrupt {
	return &types.PendingInterrupt{
		ID:     uuid.NewString(),
		Kind:   types.InterruptNotify,
		Reason: summary,
		Options: types.ResponseOptions{
			AllowApprove: true,
			AllowDeny:    true,
			AllowAnswer:  true,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// ValidateResponse checks that a human response is shaped for the pending
// interrupt. A mismatched response is rejected without consuming the
// interrupt; the run keeps waiting.
func ValidateResponse(interrupt *types.PendingInterrupt, resp types.HumanResponse) error {
	if interrupt == nil {
		return types.NewValidationError("response", "no pending interrupt")
	}
	switch resp.Type {
	case types.ResponseApprove:
		if !interrupt.Options.AllowApprove {
			return types.NewValidationError("response", "interrupt %s does not accept approve", interrupt.ID)
		}
	case types.ResponseDeny:
		if !interrupt.Options.AllowDeny {
			return types.NewValidationError("response", "interrupt %s does not accept deny", interrupt.ID)
		}
	case types.ResponseEdit:
		if !interrupt.Options.AllowEdit {
			return types.NewValidationError("response", "interrupt %s does not accept edit", interrupt.ID)
		}
		if len(resp.EditedInputs) == 0 {
			return types.NewValidationError("editedInputs", "required for edit response")
		}
	case types.ResponseAnswer:
		if !interrupt.Options.AllowAnswer {
			return types.NewValidationError("response", "interrupt %s does not accept answer", interrupt.ID)
		}
		if resp.Answer == "" {
			return types.NewValidationError("answer", "required for answer response")
		}
	default:
		return types.NewValidationError("response", "unknown response type %q", resp.Type)
	}
	return nil
}
