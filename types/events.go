package types

import "time"

type EventType string

const (
	EventRunStarted     EventType = "run.started"
	EventRunClassified  EventType = "run.classified"
	EventBeforeTool     EventType = "run.before_tool"
	EventAfterTool      EventType = "run.after_tool"
	EventRunInterrupted EventType = "run.interrupted"
	EventRunResumed     EventType = "run.resumed"
	EventRunCompleted   EventType = "run.completed"
	EventRunFailed      EventType = "run.failed"
	EventRunCancelled   EventType = "run.cancelled"
)

type Event struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	RunID       string    `json:"runId,omitempty"`
	Namespace   string    `json:"namespace,omitempty"`
	TriggerKind string    `json:"triggerKind,omitempty"`
	Iteration   int       `json:"iteration,omitempty"`
	ToolName    string    `json:"toolName,omitempty"`
	InterruptID string    `json:"interruptId,omitempty"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
}
