// Package store persists observe events for audit queries and metrics.
package store

import (
	"context"
	"time"

	"github.com/stockpilot/trigger-engine/observe"
)

type ListQuery struct {
	Limit  int
	Offset int
}

type MetricsQuery struct {
	Since *time.Time
}

type MetricsSummary struct {
	RunsStarted    int64 `json:"runsStarted"`
	RunsCompleted  int64 `json:"runsCompleted"`
	RunsFailed     int64 `json:"runsFailed"`
	ToolCalls      int64 `json:"toolCalls"`
	ToolFailures   int64 `json:"toolFailures"`
	Interrupts     int64 `json:"interrupts"`
	TriageVerdicts int64 `json:"triageVerdicts"`
}

type Store interface {
	SaveEvent(ctx context.Context, event observe.Event) error
	ListEventsByRun(ctx context.Context, runID string, query ListQuery) ([]observe.Event, error)
	ListEventsByNamespace(ctx context.Context, namespace string, query ListQuery) ([]observe.Event, error)
	AggregateMetrics(ctx context.Context, query MetricsQuery) (MetricsSummary, error)
	Close() error
}
