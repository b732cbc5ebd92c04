package sqlite

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stockpilot/trigger-engine/memory"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "memory.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestSQLiteStore_ObserveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry, err := s.Observe(ctx, memory.NamespaceRestock, "approval_threshold", 900)
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if entry.Value != 900 || entry.Updates != 1 {
		t.Fatalf("unexpected entry after first observation: %#v", entry)
	}

	entry, err = s.Observe(ctx, memory.NamespaceRestock, "approval_threshold", 500)
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	// Second observation uses rate 1/2.
	if math.Abs(entry.Value-700) > 1e-9 {
		t.Fatalf("expected value 700, got %v", entry.Value)
	}

	got, err := s.Get(ctx, memory.NamespaceRestock, "approval_threshold")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if math.Abs(got.Value-700) > 1e-9 || got.Updates != 2 {
		t.Fatalf("unexpected persisted entry: %#v", got)
	}
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(context.Background(), memory.NamespaceTriage, "absent"); !errors.Is(err, memory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_RecordOutcome(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.RecordOutcome(ctx, memory.NamespaceSupplier, "Global Components", true); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	entry, err := s.RecordOutcome(ctx, memory.NamespaceSupplier, "Global Components", false)
	if err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if entry.Outcomes != 2 || entry.Successes != 1 {
		t.Fatalf("unexpected tallies: %#v", entry)
	}
}

func TestSQLiteStore_ListByNamespace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Observe(ctx, memory.NamespaceTriage, "stockout_alert", -1); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if _, err := s.Observe(ctx, memory.NamespaceTriage, "low_stock", 1); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if _, err := s.Observe(ctx, memory.NamespaceRestock, "approval_threshold", 750); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}

	entries, err := s.List(ctx, memory.NamespaceTriage)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 triage entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Namespace != memory.NamespaceTriage {
			t.Fatalf("entry from wrong namespace: %#v", e)
		}
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "memory.db")
	ctx := context.Background()

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	if _, err := s.Observe(ctx, memory.NamespaceRestock, "order_quantity", 150); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen sqlite store: %v", err)
	}
	defer reopened.Close()

	entry, err := reopened.Get(ctx, memory.NamespaceRestock, "order_quantity")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if entry.Value != 150 || entry.Updates != 1 {
		t.Fatalf("entry not persisted: %#v", entry)
	}
}
