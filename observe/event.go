// Package observe carries structured engine telemetry to pluggable sinks:
// logs, sqlite, OpenTelemetry spans, or anything implementing Sink.
package observe

import "time"

type Kind string

type Status string

const (
	KindRun       Kind = "run"
	KindTriage    Kind = "triage"
	KindTool      Kind = "tool"
	KindInterrupt Kind = "interrupt"
	KindMemory    Kind = "memory"
	KindCustom    Kind = "custom"
)

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type Event struct {
	ID          string         `json:"id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	RunID       string         `json:"runId,omitempty"`
	Namespace   string         `json:"namespace,omitempty"`
	TriggerKind string         `json:"triggerKind,omitempty"`
	Kind        Kind           `json:"kind"`
	Status      Status         `json:"status,omitempty"`
	Name        string         `json:"name,omitempty"`
	ToolName    string         `json:"toolName,omitempty"`
	InterruptID string         `json:"interruptId,omitempty"`
	Message     string         `json:"message,omitempty"`
	Error       string         `json:"error,omitempty"`
	DurationMs  int64          `json:"durationMs,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Kind == "" {
		e.Kind = KindCustom
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
}
