// Package memory is the adaptive preference store. Each entry is a numeric
// preference (a threshold, a quantity, a weighting) that drifts toward what
// humans actually decide, with a learning rate that decays as evidence
// accumulates.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Well-known namespaces. Callers may introduce others; these are the ones
// the engine writes to.
const (
	NamespaceTriage   = "triage_preferences"
	NamespaceRestock  = "restock_preferences"
	NamespaceSupplier = "supplier_preferences"
)

// ErrNotFound is returned when a namespace/key pair has never been observed.
var ErrNotFound = errors.New("memory: entry not found")

// Entry is one learned preference.
type Entry struct {
	Namespace string    `json:"namespace"`
	Key       string    `json:"key"`
	Value     float64   `json:"value"`
	Updates   int       `json:"updates"`
	Successes int       `json:"successes"`
	Outcomes  int       `json:"outcomes"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SuccessRate returns the fraction of recorded outcomes that succeeded, or
// -1 when no outcomes have been recorded.
func (e Entry) SuccessRate() float64 {
	if e.Outcomes == 0 {
		return -1
	}
	return float64(e.Successes) / float64(e.Outcomes)
}

// Store persists preferences. Observe and RecordOutcome for the same
// namespace/key are serialized by the implementation; concurrent writers
// never lose updates.
type Store interface {
	// Get returns the entry, or ErrNotFound.
	Get(ctx context.Context, namespace, key string) (Entry, error)
	// Observe folds one observed value into the entry, creating it when
	// absent. The returned entry reflects the update.
	Observe(ctx context.Context, namespace, key string, observed float64) (Entry, error)
	// RecordOutcome tallies whether the preference led to a good result.
	RecordOutcome(ctx context.Context, namespace, key string, success bool) (Entry, error)
	// List returns every entry in a namespace.
	List(ctx context.Context, namespace string) ([]Entry, error)
	Close() error
}

// apply folds one observation into an entry. The learning rate is
// 1/(updates+1), so each new observation moves the value strictly closer to
// the observation, by a shrinking amount as the entry matures.
func apply(e Entry, observed float64) Entry {
	rate := 1.0 / float64(e.Updates+1)
	e.Value += rate * (observed - e.Value)
	e.Updates++
	e.UpdatedAt = time.Now().UTC()
	return e
}

// ValueOr reads a preference value, falling back when the entry does not
// exist or the store errors.
func ValueOr(ctx context.Context, s Store, namespace, key string, fallback float64) float64 {
	if s == nil {
		return fallback
	}
	e, err := s.Get(ctx, namespace, key)
	if err != nil {
		return fallback
	}
	return e.Value
}

// keyMutex serializes updates per namespace/key pair.
type keyMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyMutex() *keyMutex {
	return &keyMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyMutex) lock(key string) *sync.Mutex {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m
}
