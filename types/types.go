package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TriggerKind enumerates the business events the engine knows how to triage.
type TriggerKind string

const (
	KindStockoutAlert     TriggerKind = "stockout_alert"
	KindReorderRequest    TriggerKind = "reorder_request"
	KindSeasonalPrep      TriggerKind = "seasonal_prep"
	KindManualCheck       TriggerKind = "manual_check"
	KindScheduledCheck    TriggerKind = "scheduled_check"
	KindForecastRequest   TriggerKind = "forecast_request"
	KindEmergencyOrder    TriggerKind = "emergency_order"
	KindSalesUpdate       TriggerKind = "sales_update"
	KindLowStock          TriggerKind = "low_stock"
	KindSupplierPromotion TriggerKind = "supplier_promotion"
	KindBudgetCycle       TriggerKind = "budget_cycle"
)

// KnownKinds lists every recognized trigger kind.
func KnownKinds() []TriggerKind {
	return []TriggerKind{
		KindStockoutAlert,
		KindReorderRequest,
		KindSeasonalPrep,
		KindManualCheck,
		KindScheduledCheck,
		KindForecastRequest,
		KindEmergencyOrder,
		KindSalesUpdate,
		KindLowStock,
		KindSupplierPromotion,
		KindBudgetCycle,
	}
}

// IsKnownKind reports whether kind is one of the enumerated trigger kinds.
func IsKnownKind(kind TriggerKind) bool {
	for _, k := range KnownKinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// Trigger is an incoming business event. It is immutable once created; the
// engine copies it into the run state and never writes it back.
type Trigger struct {
	Kind             TriggerKind    `json:"kind"`
	TriggeredBy      string         `json:"triggeredBy,omitempty"`
	Details          map[string]any `json:"details,omitempty"`
	ItemsAffected    []string       `json:"itemsAffected,omitempty"`
	BudgetLimit      float64        `json:"budgetLimit,omitempty"`
	DeliveryDeadline string         `json:"deliveryDeadline,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
}

// DetailString returns a string detail field, or "" when absent.
func (t Trigger) DetailString(key string) string {
	if t.Details == nil {
		return ""
	}
	if s, ok := t.Details[key].(string); ok {
		return s
	}
	return ""
}

// DetailNumber returns a numeric detail field, or 0 when absent. JSON
// decoding always produces float64 for numbers; integers built in Go are
// handled too.
func (t Trigger) DetailNumber(key string) float64 {
	if t.Details == nil {
		return 0
	}
	switch v := t.Details[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// UrgencyTier buckets a trigger by how much autonomy the run is allowed.
type UrgencyTier string

const (
	TierMonitor        UrgencyTier = "monitor"
	TierAlert          UrgencyTier = "alert"
	TierActionRequired UrgencyTier = "action_required"
)

// Priority is the relative ordering of work within a tier.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// PriorityRank maps a priority to a comparable rank, low first.
func PriorityRank(p Priority) int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return 1
	}
}

// LowerPriority returns the priority one rank below p, floored at low.
func LowerPriority(p Priority) Priority {
	switch p {
	case PriorityCritical:
		return PriorityHigh
	case PriorityHigh:
		return PriorityMedium
	case PriorityMedium:
		return PriorityLow
	default:
		return PriorityLow
	}
}

// LowerTier returns the tier one step below t, floored at monitor.
func LowerTier(t UrgencyTier) UrgencyTier {
	switch t {
	case TierActionRequired:
		return TierAlert
	default:
		return TierMonitor
	}
}

// Classification is the triage verdict for a trigger. It is derived when the
// run starts and attached to the run record.
type Classification struct {
	Tier      UrgencyTier `json:"tier"`
	Priority  Priority    `json:"priority"`
	Rationale string      `json:"rationale"`
}

// SideEffect classifies what a tool does to the outside world.
type SideEffect string

const (
	SideEffectRead   SideEffect = "read"
	SideEffectMutate SideEffect = "mutate"
)

// ActionType is what the action policy proposes next.
type ActionType string

const (
	ActionToolCall ActionType = "tool_call"
	ActionQuestion ActionType = "question"
	ActionDone     ActionType = "done"
)

// Action is one proposed step from the action policy.
type Action struct {
	Type     ActionType      `json:"type"`
	Tool     string          `json:"tool,omitempty"`
	Inputs   json.RawMessage `json:"inputs,omitempty"`
	Question string          `json:"question,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// StepRole tags who produced a step in the transcript.
type StepRole string

const (
	RoleAgent StepRole = "agent"
	RoleTool  StepRole = "tool"
	RoleHuman StepRole = "human"
)

// Step is one recorded event inside a run: a tool invocation or a human
// interaction. Steps are append-only; corrections are recorded as new steps.
type Step struct {
	Seq       int             `json:"seq"`
	Role      StepRole        `json:"role"`
	Tool      string          `json:"tool,omitempty"`
	Inputs    json.RawMessage `json:"inputs,omitempty"`
	Result    string          `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Mutating  bool            `json:"mutating,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusRunning         RunStatus = "running"
	StatusWaitingForHuman RunStatus = "waiting_for_human"
	StatusCompleted       RunStatus = "completed"
	StatusFailed          RunStatus = "failed"
	StatusCancelled       RunStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// InterruptKind distinguishes why a run is waiting on a human.
type InterruptKind string

const (
	// InterruptApproval gates a mutating tool call behind human approval.
	InterruptApproval InterruptKind = "approval"
	// InterruptQuestion asks the human a clarifying question.
	InterruptQuestion InterruptKind = "question"
	// InterruptNotify surfaces an alert-tier trigger for acknowledgement
	// before any planning happens.
	InterruptNotify InterruptKind = "notify"
)

// ResponseOptions declares which human responses the interrupt accepts.
type ResponseOptions struct {
	AllowApprove bool `json:"allowApprove"`
	AllowDeny    bool `json:"allowDeny"`
	AllowEdit    bool `json:"allowEdit"`
	AllowAnswer  bool `json:"allowAnswer"`
}

// PendingInterrupt exists only while a run is waiting_for_human. It is
// consumed atomically by exactly one resume.
type PendingInterrupt struct {
	ID             string          `json:"id"`
	Kind           InterruptKind   `json:"kind"`
	Reason         string          `json:"reason"`
	Tool           string          `json:"tool,omitempty"`
	Inputs         json.RawMessage `json:"inputs,omitempty"`
	EstimatedValue float64         `json:"estimatedValue,omitempty"`
	Options        ResponseOptions `json:"options"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// ResponseType is the human decision shape supplied on resume.
type ResponseType string

const (
	ResponseApprove ResponseType = "approve"
	ResponseDeny    ResponseType = "deny"
	ResponseEdit    ResponseType = "edit"
	ResponseAnswer  ResponseType = "answer"
)

// HumanResponse is the payload for resuming a suspended run. Its shape must
// match the pending interrupt's declared options.
type HumanResponse struct {
	Type         ResponseType    `json:"type"`
	EditedInputs json.RawMessage `json:"editedInputs,omitempty"`
	Answer       string          `json:"answer,omitempty"`
	RespondedBy  string          `json:"respondedBy,omitempty"`
}

// RunState is the complete, auditable record of one trigger's processing.
// It is owned by the decision loop while active and read-only once terminal.
type RunState struct {
	RunID           string            `json:"runId"`
	Namespace       string            `json:"namespace"`
	Trigger         Trigger           `json:"trigger"`
	Classification  Classification    `json:"classification"`
	Status          RunStatus         `json:"status"`
	Steps           []Step            `json:"steps,omitempty"`
	Interrupt       *PendingInterrupt `json:"interrupt,omitempty"`
	Iterations      int               `json:"iterations"`
	MutatingActions int               `json:"mutatingActions"`
	Rationale       string            `json:"rationale,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`
}

// AppendStep records a new step with the next sequence number.
func (r *RunState) AppendStep(step Step) {
	step.Seq = len(r.Steps) + 1
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now().UTC()
	}
	r.Steps = append(r.Steps, step)
	r.UpdatedAt = step.Timestamp
}

// Transcript renders a human-readable account of the run, sufficient to
// explain why it ended the way it did.
func (r *RunState) Transcript() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s [%s] trigger=%s tier=%s priority=%s\n",
		r.RunID, r.Status, r.Trigger.Kind, r.Classification.Tier, r.Classification.Priority)
	if r.Classification.Rationale != "" {
		fmt.Fprintf(&b, "triage: %s\n", r.Classification.Rationale)
	}
	for _, step := range r.Steps {
		fmt.Fprintf(&b, "%3d [%s]", step.Seq, step.Role)
		if step.Tool != "" {
			fmt.Fprintf(&b, " %s", step.Tool)
		}
		if step.Mutating {
			b.WriteString(" (mutating)")
		}
		if step.Error != "" {
			fmt.Fprintf(&b, " error: %s", step.Error)
		} else if step.Result != "" {
			fmt.Fprintf(&b, " -> %s", step.Result)
		}
		b.WriteString("\n")
	}
	if r.Interrupt != nil {
		fmt.Fprintf(&b, "waiting: %s (%s)\n", r.Interrupt.Reason, r.Interrupt.Kind)
	}
	if r.Rationale != "" {
		fmt.Fprintf(&b, "outcome: %s\n", r.Rationale)
	}
	return b.String()
}
