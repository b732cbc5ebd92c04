package memory

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
)

func TestInMemoryStore_ObserveConverges(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	first, err := s.Observe(ctx, NamespaceRestock, "approval_threshold", 800)
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if first.Value != 800 {
		t.Fatalf("first observation should set the value directly, got %v", first.Value)
	}
	if first.Updates != 1 {
		t.Fatalf("expected 1 update, got %d", first.Updates)
	}

	// Each further observation of the same value moves the entry strictly
	// closer to it.
	prev := first.Value
	for i := 0; i < 5; i++ {
		entry, err := s.Observe(ctx, NamespaceRestock, "approval_threshold", 500)
		if err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
		if math.Abs(entry.Value-500) >= math.Abs(prev-500) {
			t.Fatalf("value did not move toward observation: prev=%v now=%v", prev, entry.Value)
		}
		prev = entry.Value
	}
}

func TestInMemoryStore_ObserveRate(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if _, err := s.Observe(ctx, NamespaceTriage, "stockout_alert", 1); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	// Second observation uses rate 1/2: 1 + 0.5*(-1-1) = 0.
	entry, err := s.Observe(ctx, NamespaceTriage, "stockout_alert", -1)
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if math.Abs(entry.Value) > 1e-9 {
		t.Fatalf("expected value 0 after opposing observation, got %v", entry.Value)
	}
}

func TestInMemoryStore_GetMissing(t *testing.T) {
	s := NewInMemoryStore()
	if _, err := s.Get(context.Background(), NamespaceTriage, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryStore_RecordOutcome(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if _, err := s.RecordOutcome(ctx, NamespaceSupplier, "TechSupply Co", true); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if _, err := s.RecordOutcome(ctx, NamespaceSupplier, "TechSupply Co", true); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	entry, err := s.RecordOutcome(ctx, NamespaceSupplier, "TechSupply Co", false)
	if err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if entry.Outcomes != 3 || entry.Successes != 2 {
		t.Fatalf("unexpected tallies: %#v", entry)
	}
	if rate := entry.SuccessRate(); math.Abs(rate-2.0/3.0) > 1e-9 {
		t.Fatalf("unexpected success rate: %v", rate)
	}
}

func TestSuccessRate_NoOutcomes(t *testing.T) {
	if rate := (Entry{}).SuccessRate(); rate != -1 {
		t.Fatalf("expected -1 for no outcomes, got %v", rate)
	}
}

func TestValueOr(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if got := ValueOr(ctx, s, NamespaceRestock, "missing", 42); got != 42 {
		t.Fatalf("expected fallback 42, got %v", got)
	}
	if got := ValueOr(ctx, nil, NamespaceRestock, "missing", 7); got != 7 {
		t.Fatalf("expected fallback for nil store, got %v", got)
	}
	if _, err := s.Observe(ctx, NamespaceRestock, "present", 3); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if got := ValueOr(ctx, s, NamespaceRestock, "present", 42); got != 3 {
		t.Fatalf("expected stored value 3, got %v", got)
	}
}

func TestInMemoryStore_ConcurrentObserve(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if _, err := s.Observe(ctx, NamespaceTriage, "contended", 1); err != nil {
					t.Errorf("Observe failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	entry, err := s.Get(ctx, NamespaceTriage, "contended")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry.Updates != writers*25 {
		t.Fatalf("lost updates: expected %d, got %d", writers*25, entry.Updates)
	}
}

func TestInMemoryStore_ListSorted(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for _, key := range []string{"zeta", "alpha", "mid"} {
		if _, err := s.Observe(ctx, NamespaceSupplier, key, 1); err != nil {
			t.Fatalf("Observe failed: %v", err)
		}
	}
	if _, err := s.Observe(ctx, NamespaceTriage, "other", 1); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}

	entries, err := s.List(ctx, NamespaceSupplier)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Key != "alpha" || entries[2].Key != "zeta" {
		t.Fatalf("entries not sorted: %#v", entries)
	}
}
