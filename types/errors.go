package types

import "fmt"

// ValidationError reports malformed caller input: an unparseable trigger,
// tool inputs that fail their schema, or a human response whose shape does
// not match the pending interrupt.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a named field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DomainError reports a failure from a tool or downstream system during a
// run. Retryable errors may be attempted again within the same run; others
// fail the step.
type DomainError struct {
	Op        string
	Reason    string
	Retryable bool
	Err       error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *DomainError) Unwrap() error { return e.Err }

// LimitExceededError reports that a run hit a hard budget: the iteration cap
// or the mutating-action cap for its tier.
type LimitExceededError struct {
	Limit string
	Max   int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("limit exceeded: %s (max %d)", e.Limit, e.Max)
}

// ConflictError reports a lost race on run state: a second resume of the same
// interrupt, or an operation against a run another writer already advanced.
type ConflictError struct {
	RunID  string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on run %s: %s", e.RunID, e.Reason)
}
