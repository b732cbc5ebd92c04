package memory

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore keeps preferences in process memory. Suitable for tests and
// single-process deployments without durability requirements.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	keys    *keyMutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]Entry),
		keys:    newKeyMutex(),
	}
}

func entryKey(namespace, key string) string {
	return namespace + "\x00" + key
}

func (s *InMemoryStore) Get(ctx context.Context, namespace, key string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[entryKey(namespace, key)]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (s *InMemoryStore) Observe(ctx context.Context, namespace, key string, observed float64) (Entry, error) {
	lock := s.keys.lock(entryKey(namespace, key))
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryKey(namespace, key)]
	if !ok {
		e = Entry{Namespace: namespace, Key: key}
	}
	e = apply(e, observed)
	s.entries[entryKey(namespace, key)] = e
	return e, nil
}

func (s *InMemoryStore) RecordOutcome(ctx context.Context, namespace, key string, success bool) (Entry, error) {
	lock := s.keys.lock(entryKey(namespace, key))
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryKey(namespace, key)]
	if !ok {
		e = Entry{Namespace: namespace, Key: key}
	}
	e.Outcomes++
	if success {
		e.Successes++
	}
	s.entries[entryKey(namespace, key)] = e
	return e, nil
}

func (s *InMemoryStore) List(ctx context.Context, namespace string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.Namespace == namespace {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
