package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stockpilot/trigger-engine/state"
	"github.com/stockpilot/trigger-engine/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRun(id string) types.RunState {
	return types.RunState{
		RunID:     id,
		Namespace: "default",
		Trigger: types.Trigger{
			Kind:    types.KindStockoutAlert,
			Details: map[string]any{"item": "USB-C Cable", "current_stock": 2.0},
		},
		Classification: types.Classification{
			Tier:      types.TierActionRequired,
			Priority:  types.PriorityCritical,
			Rationale: "stock nearly exhausted",
		},
		Status: types.StatusRunning,
		Steps: []types.Step{
			{Role: types.RoleTool, Tool: "check_stock", Result: `{"belowReorder":true}`},
		},
	}
}

func TestStore_SaveAndLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := sampleRun("run-1")
	run.Interrupt = &types.PendingInterrupt{
		ID:             "int-1",
		Kind:           types.InterruptApproval,
		Reason:         "order exceeds the approval threshold",
		Tool:           "create_purchase_order",
		Inputs:         json.RawMessage(`{"item":"USB-C Cable","quantity":63}`),
		EstimatedValue: 756,
		Options:        types.ResponseOptions{AllowApprove: true, AllowDeny: true, AllowEdit: true},
	}
	run.Status = types.StatusWaitingForHuman
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	loaded, err := s.LoadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if loaded.Trigger.Kind != types.KindStockoutAlert {
		t.Fatalf("trigger kind lost: %q", loaded.Trigger.Kind)
	}
	if loaded.Classification.Priority != types.PriorityCritical {
		t.Fatalf("classification lost: %+v", loaded.Classification)
	}
	if len(loaded.Steps) != 1 || loaded.Steps[0].Tool != "check_stock" {
		t.Fatalf("steps lost: %+v", loaded.Steps)
	}
	if loaded.Interrupt == nil || loaded.Interrupt.Kind != types.InterruptApproval {
		t.Fatalf("interrupt lost: %+v", loaded.Interrupt)
	}
	if loaded.Interrupt.EstimatedValue != 756 {
		t.Fatalf("expected estimated value 756, got %v", loaded.Interrupt.EstimatedValue)
	}
	if !loaded.Interrupt.Options.AllowEdit {
		t.Fatalf("response options lost: %+v", loaded.Interrupt.Options)
	}
	if loaded.CreatedAt.IsZero() || loaded.UpdatedAt.IsZero() {
		t.Fatal("timestamps should be backfilled on save")
	}
}

func TestStore_LoadMissingRun(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.LoadRun(context.Background(), "nope"); !errors.Is(err, state.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_SaveValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := sampleRun("run-1")
	run.RunID = ""
	if err := s.SaveRun(ctx, run); err == nil {
		t.Fatal("expected error for missing run_id")
	}

	run = sampleRun("run-1")
	run.Namespace = ""
	if err := s.SaveRun(ctx, run); err == nil {
		t.Fatal("expected error for missing namespace")
	}
}

func TestStore_UpsertOnResave(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := sampleRun("run-1")
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	run.Status = types.StatusCompleted
	run.Rationale = "purchase order placed"
	now := time.Now().UTC()
	run.CompletedAt = &now
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("re-save failed: %v", err)
	}

	loaded, err := s.LoadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if loaded.Status != types.StatusCompleted {
		t.Fatalf("status not updated: %q", loaded.Status)
	}
	if loaded.CompletedAt == nil {
		t.Fatal("completed_at not persisted")
	}

	runs, err := s.ListRuns(ctx, state.ListRunsQuery{})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("re-save must not duplicate rows: got %d", len(runs))
	}
}

func TestStore_ListFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		run := sampleRun(fmt.Sprintf("run-%d", i))
		run.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		run.UpdatedAt = run.CreatedAt
		if i%2 == 0 {
			run.Status = types.StatusCompleted
		}
		if i == 4 {
			run.Namespace = "warehouse-2"
			run.Trigger.Kind = types.KindManualCheck
		}
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	runs, err := s.ListRuns(ctx, state.ListRunsQuery{Status: types.StatusCompleted})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 completed runs, got %d", len(runs))
	}

	runs, err = s.ListRuns(ctx, state.ListRunsQuery{Namespace: "warehouse-2"})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-4" {
		t.Fatalf("namespace filter wrong: %+v", runs)
	}

	runs, err = s.ListRuns(ctx, state.ListRunsQuery{Kind: types.KindStockoutAlert})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 4 {
		t.Fatalf("expected 4 stockout runs, got %d", len(runs))
	}

	// Newest first, so the page boundary lands on older runs.
	runs, err = s.ListRuns(ctx, state.ListRunsQuery{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-3" || runs[1].RunID != "run-2" {
		t.Fatalf("pagination wrong: %+v", runs)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := New(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := s.SaveRun(ctx, sampleRun("run-1")); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.LoadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadRun after reopen failed: %v", err)
	}
	if loaded.Trigger.Kind != types.KindStockoutAlert {
		t.Fatalf("payload lost across reopen: %+v", loaded)
	}
}
