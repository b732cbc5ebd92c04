// Package engine runs triggers through triage, the bounded decision loop,
// and human interrupts. Every state transition is persisted before the
// engine moves on, so a process restart never loses a run.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stockpilot/trigger-engine/hitl"
	"github.com/stockpilot/trigger-engine/memory"
	"github.com/stockpilot/trigger-engine/observe"
	"github.com/stockpilot/trigger-engine/policy"
	"github.com/stockpilot/trigger-engine/state"
	"github.com/stockpilot/trigger-engine/tools"
	"github.com/stockpilot/trigger-engine/triage"
	"github.com/stockpilot/trigger-engine/trigger"
	"github.com/stockpilot/trigger-engine/types"
)

const (
	defaultMaxIterations = 12
	defaultNamespace     = "default"

	// KeyApprovalThreshold is the learned purchase-approval threshold in the
	// restock preference namespace.
	KeyApprovalThreshold = "approval_threshold"
)

type Engine struct {
	toolset           *tools.Set
	classifier        *triage.Classifier
	actionPolicy      policy.Policy
	store             state.Store
	mem               memory.Store
	observer          observe.Sink
	namespace         string
	maxIterations     int
	approvalThreshold float64
	toolTimeout       time.Duration

	mu     sync.Mutex
	active map[string]bool
}

type Option func(*Engine)

func WithStore(store state.Store) Option {
	return func(e *Engine) { e.store = store }
}

func WithMemory(store memory.Store) Option {
	return func(e *Engine) { e.mem = store }
}

func WithObserver(observer observe.Sink) Option {
	return func(e *Engine) { e.observer = observer }
}

func WithNamespace(namespace string) Option {
	return func(e *Engine) {
		if namespace != "" {
			e.namespace = namespace
		}
	}
}

func WithMaxIterations(max int) Option {
	return func(e *Engine) {
		if max > 0 {
			e.maxIterations = max
		}
	}
}

func WithApprovalThreshold(threshold float64) Option {
	return func(e *Engine) {
		if threshold > 0 {
			e.approvalThreshold = threshold
		}
	}
}

func WithToolTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout >= 0 {
			e.toolTimeout = timeout
		}
	}
}

func WithClassifier(classifier *triage.Classifier) Option {
	return func(e *Engine) {
		if classifier != nil {
			e.classifier = classifier
		}
	}
}

func WithPolicy(p policy.Policy) Option {
	return func(e *Engine) {
		if p != nil {
			e.actionPolicy = p
		}
	}
}

func New(toolset *tools.Set, opts ...Option) (*Engine, error) {
	if toolset == nil {
		return nil, errors.New("toolset is required")
	}
	e := &Engine{
		toolset:           toolset,
		namespace:         defaultNamespace,
		maxIterations:     defaultMaxIterations,
		approvalThreshold: hitl.DefaultApprovalThreshold,
		active:            make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.classifier == nil {
		e.classifier = triage.New(triage.WithMemory(e.mem))
	}
	if e.actionPolicy == nil {
		e.actionPolicy = policy.NewRouter()
	}
	return e, nil
}

// Run accepts a trigger, classifies it, and drives the decision loop until
// the run finishes or suspends on a human interrupt. The returned run state
// is whatever the run looked like when Run stopped advancing it.
func (e *Engine) Run(ctx context.Context, t types.Trigger) (types.RunState, error) {
	if err := trigger.Validate(t); err != nil {
		return types.RunState{}, err
	}
	t = trigger.Normalize(t)

	now := time.Now().UTC()
	run := types.RunState{
		RunID:     uuid.NewString(),
		Namespace: e.namespace,
		Trigger:   t,
		Status:    types.StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if !e.acquire(run.RunID) {
		return types.RunState{}, &types.ConflictError{RunID: run.RunID, Reason: "run already active"}
	}
	defer e.release(run.RunID)

	e.emit(ctx, types.Event{
		Type:        types.EventRunStarted,
		Timestamp:   now,
		RunID:       run.RunID,
		Namespace:   run.Namespace,
		TriggerKind: string(t.Kind),
		Message:     "run started",
	})

	run.Classification = e.classifier.Classify(ctx, t)
	e.emit(ctx, types.Event{
		Type:        types.EventRunClassified,
		Timestamp:   time.Now().UTC(),
		RunID:       run.RunID,
		Namespace:   run.Namespace,
		TriggerKind: string(t.Kind),
		Message:     fmt.Sprintf("tier=%s priority=%s: %s", run.Classification.Tier, run.Classification.Priority, run.Classification.Rationale),
	})

	if err := e.saveRun(ctx, &run); err != nil {
		return types.RunState{}, fmt.Errorf("failed to persist run start: %w", err)
	}

	// Alert-tier triggers surface to a human before any planning.
	if run.Classification.Tier == types.TierAlert {
		return e.suspend(ctx, &run, hitl.NewNotifyInterrupt(trigger.Describe(t)))
	}

	return e.advance(ctx, &run)
}

// Resume applies a human response to a suspended run and continues the
// decision loop. Exactly one resume consumes each interrupt; a second caller
// races and gets a conflict.
func (e *Engine) Resume(ctx context.Context, runID string, resp types.HumanResponse) (types.RunState, error) {
	if e.store == nil {
		return types.RunState{}, errors.New("engine has no state store")
	}
	if !e.acquire(runID) {
		return types.RunState{}, &types.ConflictError{RunID: runID, Reason: "run already being advanced"}
	}
	defer e.release(runID)

	run, err := e.store.LoadRun(ctx, runID)
	if err != nil {
		return types.RunState{}, err
	}
	if run.Status != types.StatusWaitingForHuman || run.Interrupt == nil {
		return types.RunState{}, &types.ConflictError{RunID: runID, Reason: fmt.Sprintf("run is %s, not waiting for a response", run.Status)}
	}
	if err := hitl.ValidateResponse(run.Interrupt, resp); err != nil {
		// The interrupt is not consumed; the run keeps waiting.
		return run, err
	}

	interrupt := *run.Interrupt
	run.Interrupt = nil
	run.Status = types.StatusRunning

	e.emit(ctx, types.Event{
		Type:        types.EventRunResumed,
		Timestamp:   time.Now().UTC(),
		RunID:       run.RunID,
		Namespace:   run.Namespace,
		TriggerKind: string(run.Trigger.Kind),
		InterruptID: interrupt.ID,
		Message:     fmt.Sprintf("resumed with %s", resp.Type),
	})

	switch interrupt.Kind {
	case types.InterruptNotify:
		if done, result, err := e.applyNotifyResponse(ctx, &run, interrupt, resp); done {
			return result, err
		}
	case types.InterruptApproval:
		if done, result, err := e.applyApprovalResponse(ctx, &run, interrupt, resp); done {
			return result, err
		}
	case types.InterruptQuestion:
		e.applyQuestionResponse(&run, resp)
	default:
		return types.RunState{}, &types.ConflictError{RunID: runID, Reason: fmt.Sprintf("unknown interrupt kind %q", interrupt.Kind)}
	}

	if err := e.saveRun(ctx, &run); err != nil {
		return types.RunState{}, fmt.Errorf("failed to persist resume: %w", err)
	}
	return e.advance(ctx, &run)
}

// Cancel stops a run. Steps already executed are not rolled back; the run
// record says so.
func (e *Engine) Cancel(ctx context.Context, runID string) (types.RunState, error) {
	if e.store == nil {
		return types.RunState{}, errors.New("engine has no state store")
	}
	if !e.acquire(runID) {
		return types.RunState{}, &types.ConflictError{RunID: runID, Reason: "run already being advanced"}
	}
	defer e.release(runID)

	run, err := e.store.LoadRun(ctx, runID)
	if err != nil {
		return types.RunState{}, err
	}
	if run.Status.Terminal() {
		return types.RunState{}, &types.ConflictError{RunID: runID, Reason: fmt.Sprintf("run already %s", run.Status)}
	}

	now := time.Now().UTC()
	run.Status = types.StatusCancelled
	run.Interrupt = nil
	run.Rationale = "cancelled by operator; completed steps are not rolled back"
	run.UpdatedAt = now
	run.CompletedAt = &now
	if err := e.saveRun(ctx, &run); err != nil {
		return types.RunState{}, fmt.Errorf("failed to persist cancellation: %w", err)
	}
	e.emit(ctx, types.Event{
		Type:        types.EventRunCancelled,
		Timestamp:   now,
		RunID:       run.RunID,
		Namespace:   run.Namespace,
		TriggerKind: string(run.Trigger.Kind),
		Message:     run.Rationale,
	})
	return run, nil
}

// Get loads a run by id.
func (e *Engine) Get(ctx context.Context, runID string) (types.RunState, error) {
	if e.store == nil {
		return types.RunState{}, errors.New("engine has no state store")
	}
	return e.store.LoadRun(ctx, runID)
}

// List queries stored runs.
func (e *Engine) List(ctx context.Context, query state.ListRunsQuery) ([]types.RunState, error) {
	if e.store == nil {
		return nil, errors.New("engine has no state store")
	}
	return e.store.ListRuns(ctx, query)
}

// advance drives the decision loop until the run completes, suspends, or
// exhausts a budget.
func (e *Engine) advance(ctx context.Context, run *types.RunState) (types.RunState, error) {
	for run.Iterations < e.maxIterations {
		run.Iterations++

		action, err := e.actionPolicy.Next(ctx, run, e.toolset)
		if err != nil {
			return e.markFailed(ctx, run, fmt.Errorf("action policy failed: %w", err))
		}

		switch action.Type {
		case types.ActionDone:
			return e.complete(ctx, run, action.Reason)

		case types.ActionQuestion:
			return e.suspend(ctx, run, hitl.NewQuestionInterrupt(action.Question))

		case types.ActionToolCall:
			tool, ok := e.toolset.Get(action.Tool)
			if !ok {
				return e.markFailed(ctx, run, types.NewValidationError("tool", "unknown tool %q", action.Tool))
			}
			def := tool.Definition()

			if def.Mutating() && !def.AutoApprove {
				if cap := mutatingCap(run.Classification); run.MutatingActions >= cap {
					return e.markFailed(ctx, run, &types.LimitExceededError{Limit: "mutating actions", Max: cap})
				}
			}

			value := e.toolset.EstimateValue(action.Tool, action.Inputs)
			if hitl.NeedsApproval(def, value, e.effectiveThreshold(ctx, run), e.forceApproval(ctx, run, action.Inputs)) {
				return e.suspend(ctx, run, hitl.NewApprovalInterrupt(action, value))
			}

			if err := e.executeStep(ctx, run, def, action.Inputs); fatalToolError(err) {
				return e.markFailed(ctx, run, err)
			}
			if err := e.saveRun(ctx, run); err != nil {
				return types.RunState{}, fmt.Errorf("failed to persist step: %w", err)
			}

		default:
			return e.markFailed(ctx, run, types.NewValidationError("action", "unknown action type %q", action.Type))
		}
	}

	return e.markFailed(ctx, run, &types.LimitExceededError{Limit: "iterations", Max: e.maxIterations})
}

// executeStep runs one tool call and appends the step to the run. The
// execution error is returned so callers can decide whether the run
// survives it; the step records it either way.
func (e *Engine) executeStep(ctx context.Context, run *types.RunState, def tools.Definition, inputs json.RawMessage) error {
	started := time.Now().UTC()
	e.emit(ctx, types.Event{
		Type:        types.EventBeforeTool,
		Timestamp:   started,
		RunID:       run.RunID,
		Namespace:   run.Namespace,
		TriggerKind: string(run.Trigger.Kind),
		Iteration:   run.Iterations,
		ToolName:    def.Name,
	})

	execCtx := ctx
	if e.toolTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.toolTimeout)
		defer cancel()
	}

	result, err := e.toolset.Execute(execCtx, def.Name, inputs)

	step := types.Step{
		Role:     types.RoleTool,
		Tool:     def.Name,
		Inputs:   inputs,
		Mutating: def.Mutating(),
	}
	if err != nil {
		step.Error = err.Error()
	} else {
		raw, encErr := json.Marshal(result)
		if encErr != nil {
			step.Error = fmt.Sprintf("failed to encode tool result: %v", encErr)
		} else {
			step.Result = string(raw)
		}
	}
	run.AppendStep(step)
	if err == nil && def.Mutating() && !def.AutoApprove {
		run.MutatingActions++
	}
	if err == nil && def.Mutating() {
		// A filled order marks the supplier as known; later orders to it
		// are gated by value alone.
		if supplier := supplierArg(inputs); supplier != "" {
			e.recordOutcome(ctx, memory.NamespaceSupplier, supplier, true)
		}
	}

	after := types.Event{
		Type:        types.EventAfterTool,
		Timestamp:   time.Now().UTC(),
		RunID:       run.RunID,
		Namespace:   run.Namespace,
		TriggerKind: string(run.Trigger.Kind),
		Iteration:   run.Iterations,
		ToolName:    def.Name,
	}
	if err != nil {
		after.Error = err.Error()
	}
	e.emit(ctx, after)
	return err
}

// fatalToolError reports a tool failure the run cannot recover from. The
// planner handles retryable domain errors and plain failures itself.
func fatalToolError(err error) bool {
	if err == nil {
		return false
	}
	var domErr *types.DomainError
	return errors.As(err, &domErr) && !domErr.Retryable
}

// forceApproval resolves the per-run always-approve rules: an emergency
// order never places a mutating call unattended, and neither does the first
// order routed to a supplier no human has dealt with before.
func (e *Engine) forceApproval(ctx context.Context, run *types.RunState, inputs json.RawMessage) bool {
	if run.Trigger.Kind == types.KindEmergencyOrder {
		return true
	}
	if supplier := supplierArg(inputs); supplier != "" && e.mem != nil {
		if _, err := e.mem.Get(ctx, memory.NamespaceSupplier, supplier); errors.Is(err, memory.ErrNotFound) {
			return true
		}
	}
	return false
}

// supplierArg extracts the supplier name from tool inputs, if present.
func supplierArg(inputs json.RawMessage) string {
	if len(inputs) == 0 {
		return ""
	}
	var args struct {
		Supplier string `json:"supplier"`
	}
	if err := json.Unmarshal(inputs, &args); err != nil {
		return ""
	}
	return args.Supplier
}

// applyNotifyResponse handles acknowledgement of an alert-tier trigger.
// Returning done means the run reached a terminal state here.
func (e *Engine) applyNotifyResponse(ctx context.Context, run *types.RunState, interrupt types.PendingInterrupt, resp types.HumanResponse) (bool, types.RunState, error) {
	switch resp.Type {
	case types.ResponseDeny:
		// Dismissal trains triage to care less about this trigger kind.
		e.observeMemory(ctx, memory.NamespaceTriage, string(run.Trigger.Kind), -1)
		run.AppendStep(types.Step{
			Role:   types.RoleHuman,
			Result: "trigger dismissed",
		})
		result, err := e.complete(ctx, run, "dismissed by operator")
		return true, result, err
	case types.ResponseAnswer:
		e.observeMemory(ctx, memory.NamespaceTriage, string(run.Trigger.Kind), 1)
		run.AppendStep(types.Step{
			Role:   types.RoleHuman,
			Result: resp.Answer,
		})
	default: // approve
		e.observeMemory(ctx, memory.NamespaceTriage, string(run.Trigger.Kind), 1)
		run.AppendStep(types.Step{
			Role:   types.RoleHuman,
			Result: "trigger acknowledged",
		})
	}
	return false, types.RunState{}, nil
}

// applyApprovalResponse handles the verdict on a gated tool call.
func (e *Engine) applyApprovalResponse(ctx context.Context, run *types.RunState, interrupt types.PendingInterrupt, resp types.HumanResponse) (bool, types.RunState, error) {
	tool, ok := e.toolset.Get(interrupt.Tool)
	if !ok {
		result, err := e.markFailed(ctx, run, types.NewValidationError("tool", "gated tool %q no longer available", interrupt.Tool))
		return true, result, err
	}
	def := tool.Definition()

	switch resp.Type {
	case types.ResponseApprove:
		run.AppendStep(types.Step{
			Role:   types.RoleHuman,
			Tool:   interrupt.Tool,
			Result: "approved",
		})
		err := e.executeStep(ctx, run, def, interrupt.Inputs)
		if fatalToolError(err) {
			result, failErr := e.markFailed(ctx, run, err)
			return true, result, failErr
		}
		e.recordOutcome(ctx, memory.NamespaceRestock, KeyApprovalThreshold, err == nil)

	case types.ResponseDeny:
		run.AppendStep(types.Step{
			Role:  types.RoleHuman,
			Tool:  interrupt.Tool,
			Error: "denied by operator",
		})
		// A denial at this value means the threshold sits too high.
		if interrupt.EstimatedValue > 0 {
			e.observeMemory(ctx, memory.NamespaceRestock, KeyApprovalThreshold, interrupt.EstimatedValue/2)
		}
		e.recordOutcome(ctx, memory.NamespaceRestock, KeyApprovalThreshold, false)

	case types.ResponseEdit:
		if err := tools.ValidateArgs(def, resp.EditedInputs); err != nil {
			// Invalid edit does not consume the interrupt.
			run.Interrupt = &interrupt
			run.Status = types.StatusWaitingForHuman
			if saveErr := e.saveRun(ctx, run); saveErr != nil {
				return true, types.RunState{}, fmt.Errorf("failed to persist run: %w", saveErr)
			}
			return true, *run, err
		}
		run.AppendStep(types.Step{
			Role:   types.RoleHuman,
			Tool:   interrupt.Tool,
			Inputs: resp.EditedInputs,
			Result: "edited and approved",
		})
		err := e.executeStep(ctx, run, def, resp.EditedInputs)
		if fatalToolError(err) {
			result, failErr := e.markFailed(ctx, run, err)
			return true, result, failErr
		}
		// The edited value is the operator's revealed preference.
		if edited := e.toolset.EstimateValue(interrupt.Tool, resp.EditedInputs); edited > 0 {
			e.observeMemory(ctx, memory.NamespaceRestock, KeyApprovalThreshold, edited)
		}
		e.recordOutcome(ctx, memory.NamespaceRestock, KeyApprovalThreshold, err == nil)
	}
	return false, types.RunState{}, nil
}

func (e *Engine) applyQuestionResponse(run *types.RunState, resp types.HumanResponse) {
	switch resp.Type {
	case types.ResponseAnswer:
		run.AppendStep(types.Step{
			Role:   types.RoleHuman,
			Result: resp.Answer,
		})
	case types.ResponseDeny:
		run.AppendStep(types.Step{
			Role:   types.RoleHuman,
			Result: "question dismissed",
		})
	}
}

// effectiveThreshold resolves the purchase-approval threshold: the learned
// preference can only make the configured threshold stricter, never looser.
func (e *Engine) effectiveThreshold(ctx context.Context, run *types.RunState) float64 {
	threshold := e.approvalThreshold
	if run.Trigger.BudgetLimit > 0 && run.Trigger.BudgetLimit < threshold {
		threshold = run.Trigger.BudgetLimit
	}
	if e.mem != nil {
		if entry, err := e.mem.Get(ctx, memory.NamespaceRestock, KeyApprovalThreshold); err == nil && entry.Value > 0 && entry.Value < threshold {
			threshold = entry.Value
		}
	}
	return threshold
}

func (e *Engine) suspend(ctx context.Context, run *types.RunState, interrupt *types.PendingInterrupt) (types.RunState, error) {
	run.Status = types.StatusWaitingForHuman
	run.Interrupt = interrupt
	run.UpdatedAt = time.Now().UTC()
	if err := e.saveRun(ctx, run); err != nil {
		return types.RunState{}, fmt.Errorf("failed to persist interrupt: %w", err)
	}
	e.emit(ctx, types.Event{
		Type:        types.EventRunInterrupted,
		Timestamp:   run.UpdatedAt,
		RunID:       run.RunID,
		Namespace:   run.Namespace,
		TriggerKind: string(run.Trigger.Kind),
		InterruptID: interrupt.ID,
		Message:     interrupt.Reason,
	})
	return *run, nil
}

func (e *Engine) complete(ctx context.Context, run *types.RunState, rationale string) (types.RunState, error) {
	now := time.Now().UTC()
	run.Status = types.StatusCompleted
	run.Rationale = rationale
	run.UpdatedAt = now
	run.CompletedAt = &now
	if err := e.saveRun(ctx, run); err != nil {
		return types.RunState{}, fmt.Errorf("failed to persist completion: %w", err)
	}
	e.emit(ctx, types.Event{
		Type:        types.EventRunCompleted,
		Timestamp:   now,
		RunID:       run.RunID,
		Namespace:   run.Namespace,
		TriggerKind: string(run.Trigger.Kind),
		Iteration:   run.Iterations,
		Message:     rationale,
	})
	return *run, nil
}

func (e *Engine) markFailed(ctx context.Context, run *types.RunState, cause error) (types.RunState, error) {
	now := time.Now().UTC()
	run.Status = types.StatusFailed
	run.Rationale = cause.Error()
	run.UpdatedAt = now
	run.CompletedAt = &now
	if saveErr := e.saveRun(ctx, run); saveErr != nil {
		return types.RunState{}, fmt.Errorf("%w (also failed to persist failure: %v)", cause, saveErr)
	}
	e.emit(ctx, types.Event{
		Type:        types.EventRunFailed,
		Timestamp:   now,
		RunID:       run.RunID,
		Namespace:   run.Namespace,
		TriggerKind: string(run.Trigger.Kind),
		Iteration:   run.Iterations,
		Error:       cause.Error(),
	})
	return *run, cause
}

func (e *Engine) saveRun(ctx context.Context, run *types.RunState) error {
	if e.store == nil {
		return nil
	}
	run.UpdatedAt = time.Now().UTC()
	return e.store.SaveRun(ctx, *run)
}

func (e *Engine) observeMemory(ctx context.Context, namespace, key string, value float64) {
	if e.mem == nil {
		return
	}
	if _, err := e.mem.Observe(ctx, namespace, key, value); err != nil {
		e.emit(ctx, types.Event{
			Type:      types.EventType("memory.observe_failed"),
			Timestamp: time.Now().UTC(),
			Message:   fmt.Sprintf("%s/%s", namespace, key),
			Error:     err.Error(),
		})
	}
}

func (e *Engine) recordOutcome(ctx context.Context, namespace, key string, success bool) {
	if e.mem == nil {
		return
	}
	_, _ = e.mem.RecordOutcome(ctx, namespace, key, success)
}

func (e *Engine) emit(ctx context.Context, event types.Event) {
	if e.observer == nil {
		return
	}
	_ = e.observer.Emit(ctx, observe.FromEngineEvent(event))
}

func (e *Engine) acquire(runID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[runID] {
		return false
	}
	e.active[runID] = true
	return true
}

func (e *Engine) release(runID string) {
	e.mu.Lock()
	delete(e.active, runID)
	e.mu.Unlock()
}

// mutatingCap bounds how many mutating tool calls a run may take on its own.
// Monitor-tier runs may take none.
func mutatingCap(c types.Classification) int {
	if c.Tier == types.TierMonitor {
		return 0
	}
	switch c.Priority {
	case types.PriorityCritical:
		return 5
	case types.PriorityHigh:
		return 3
	case types.PriorityMedium:
		return 2
	default:
		return 1
	}
}
