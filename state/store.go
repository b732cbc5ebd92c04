// Package state persists run records. The engine writes the full run state
// at every transition, so a process restart can pick up any suspended run
// from the store alone.
package state

import (
	"context"
	"errors"

	"github.com/stockpilot/trigger-engine/types"
)

var (
	ErrNotFound = errors.New("state: not found")
	ErrConflict = errors.New("state: conflict")
)

type ListRunsQuery struct {
	Namespace string
	Status    types.RunStatus
	Kind      types.TriggerKind
	Limit     int
	Offset    int
}

type Store interface {
	SaveRun(ctx context.Context, run types.RunState) error
	LoadRun(ctx context.Context, runID string) (types.RunState, error)
	ListRuns(ctx context.Context, query ListRunsQuery) ([]types.RunState, error)
	Close() error
}
