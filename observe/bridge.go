package observe

import (
	"strings"

	"github.com/stockpilot/trigger-engine/types"
)

// FromEngineEvent converts an engine lifecycle event into an observe event.
func FromEngineEvent(in types.Event) Event {
	e := Event{
		Timestamp:   in.Timestamp,
		RunID:       in.RunID,
		Namespace:   in.Namespace,
		TriggerKind: in.TriggerKind,
		ToolName:    in.ToolName,
		InterruptID: in.InterruptID,
		Message:     in.Message,
		Error:       in.Error,
		Attributes: map[string]any{
			"eventType": string(in.Type),
		},
	}
	if in.Iteration > 0 {
		e.Attributes["iteration"] = in.Iteration
	}

	eventType := string(in.Type)
	switch {
	case strings.Contains(eventType, "classified"):
		e.Kind = KindTriage
	case strings.Contains(eventType, "tool"):
		e.Kind = KindTool
	case strings.Contains(eventType, "interrupted"), strings.Contains(eventType, "resumed"):
		e.Kind = KindInterrupt
	case strings.HasPrefix(eventType, "run."):
		e.Kind = KindRun
	default:
		e.Kind = KindCustom
	}

	switch {
	case strings.Contains(eventType, "failed"):
		e.Status = StatusFailed
	case strings.Contains(eventType, "before"), strings.Contains(eventType, "started"),
		strings.Contains(eventType, "interrupted"):
		// An interrupt opens a wait; the matching resume closes it.
		e.Status = StatusStarted
	default:
		e.Status = StatusCompleted
	}

	e.Normalize()
	return e
}
