package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stockpilot/trigger-engine/state"
	"github.com/stockpilot/trigger-engine/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	prefix := "trigeng:statetest:" + uuid.NewString()
	s, err := New(addr, WithPrefix(prefix), WithTTL(time.Minute))
	if err != nil {
		t.Skipf("redis unavailable at %s: %v", addr, err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		var cursor uint64
		for {
			keys, next, err := s.client.Scan(ctx, cursor, prefix+":*", 100).Result()
			if err != nil {
				break
			}
			if len(keys) > 0 {
				_ = s.client.Del(ctx, keys...).Err()
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
		_ = s.Close()
	})
	return s
}

func sampleRun(id string) types.RunState {
	return types.RunState{
		RunID:     id,
		Namespace: "default",
		Status:    types.StatusCompleted,
		Trigger: types.Trigger{
			Kind:    types.KindStockoutAlert,
			Details: map[string]any{"item": "USB-C Cable"},
		},
	}
}

func TestStore_SaveAndLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := sampleRun("run-1")
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := s.LoadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if got.RunID != "run-1" || got.Namespace != "default" {
		t.Fatalf("unexpected run loaded: %+v", got)
	}
	if got.Trigger.Kind != types.KindStockoutAlert {
		t.Fatalf("trigger kind lost: %q", got.Trigger.Kind)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("timestamps should be backfilled on save")
	}
}

func TestStore_LoadMissingRun(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LoadRun(context.Background(), "no-such-run")
	if !errors.Is(err, state.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_SaveValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := sampleRun("")
	if err := s.SaveRun(ctx, run); err == nil {
		t.Fatal("expected error for missing run_id")
	}

	run = sampleRun("run-1")
	run.Namespace = ""
	if err := s.SaveRun(ctx, run); err == nil {
		t.Fatal("expected error for missing namespace")
	}
}

func TestStore_ListRunsByNamespace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"run-1", "run-2", "run-3"} {
		run := sampleRun(id)
		run.UpdatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		if run.RunID == "run-2" {
			run.Status = types.StatusWaitingForHuman
		}
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun %s failed: %v", id, err)
		}
	}

	runs, err := s.ListRuns(ctx, state.ListRunsQuery{Namespace: "default"})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	// Newest first.
	if runs[0].RunID != "run-3" {
		t.Fatalf("expected run-3 first, got %s", runs[0].RunID)
	}

	waiting, err := s.ListRuns(ctx, state.ListRunsQuery{Namespace: "default", Status: types.StatusWaitingForHuman})
	if err != nil {
		t.Fatalf("ListRuns with status filter failed: %v", err)
	}
	if len(waiting) != 1 || waiting[0].RunID != "run-2" {
		t.Fatalf("status filter broken: %+v", waiting)
	}
}

func TestStore_RunLock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.AcquireRunLock(ctx, "run-1", "worker-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected lock acquired, got ok=%v err=%v", ok, err)
	}

	ok, err = s.AcquireRunLock(ctx, "run-1", "worker-b", time.Minute)
	if err != nil {
		t.Fatalf("second acquire errored: %v", err)
	}
	if ok {
		t.Fatal("lock should not be granted twice")
	}

	// A non-owner release must leave the lock in place.
	if err := s.ReleaseRunLock(ctx, "run-1", "worker-b"); err != nil {
		t.Fatalf("release by non-owner errored: %v", err)
	}
	ok, _ = s.AcquireRunLock(ctx, "run-1", "worker-b", time.Minute)
	if ok {
		t.Fatal("non-owner release should not free the lock")
	}

	if err := s.ReleaseRunLock(ctx, "run-1", "worker-a"); err != nil {
		t.Fatalf("release by owner errored: %v", err)
	}
	ok, err = s.AcquireRunLock(ctx, "run-1", "worker-b", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected lock after owner release, got ok=%v err=%v", ok, err)
	}
}
