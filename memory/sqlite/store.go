// Package sqlite persists adaptive preferences in a local sqlite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stockpilot/trigger-engine/memory"
)

//go:embed schema.sql
var schemaSQL string

const defaultBusyTimeout = 5 * time.Second

type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
	enableWAL   bool

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type Option func(*Store)

func WithBusyTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout >= 0 {
			s.busyTimeout = timeout
		}
	}
}

func WithWAL(enabled bool) Option {
	return func(s *Store) {
		s.enableWAL = enabled
	}
}

func New(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	s := &Store{
		busyTimeout: defaultBusyTimeout,
		enableWAL:   true,
		locks:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s.db = db
	if err := s.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if s.busyTimeout > 0 {
		ms := int(s.busyTimeout / time.Millisecond)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", ms)); err != nil {
			return fmt.Errorf("failed to set busy_timeout: %w", err)
		}
	}
	if s.enableWAL {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable wal: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// keyLock serializes the read-modify-write cycle per namespace/key.
func (s *Store) keyLock(namespace, key string) *sync.Mutex {
	id := namespace + "\x00" + key
	s.mu.Lock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m
}

func (s *Store) Get(ctx context.Context, namespace, key string) (memory.Entry, error) {
	const q = `
SELECT namespace, key, value, updates, successes, outcomes, updated_at
FROM preferences
WHERE namespace = ? AND key = ?;
`
	var (
		e          memory.Entry
		updatedRaw string
	)
	err := s.db.QueryRowContext(ctx, q, namespace, key).Scan(
		&e.Namespace,
		&e.Key,
		&e.Value,
		&e.Updates,
		&e.Successes,
		&e.Outcomes,
		&updatedRaw,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return memory.Entry{}, memory.ErrNotFound
		}
		return memory.Entry{}, fmt.Errorf("failed to load preference: %w", err)
	}
	e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedRaw)
	if err != nil {
		return memory.Entry{}, fmt.Errorf("failed to parse preference updated_at: %w", err)
	}
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

func (s *Store) Observe(ctx context.Context, namespace, key string, observed float64) (memory.Entry, error) {
	lock := s.keyLock(namespace, key)
	defer lock.Unlock()

	e, err := s.Get(ctx, namespace, key)
	if err != nil && !errors.Is(err, memory.ErrNotFound) {
		return memory.Entry{}, err
	}
	if errors.Is(err, memory.ErrNotFound) {
		e = memory.Entry{Namespace: namespace, Key: key}
	}

	rate := 1.0 / float64(e.Updates+1)
	e.Value += rate * (observed - e.Value)
	e.Updates++
	e.UpdatedAt = time.Now().UTC()

	if err := s.upsert(ctx, e); err != nil {
		return memory.Entry{}, err
	}
	return e, nil
}

func (s *Store) RecordOutcome(ctx context.Context, namespace, key string, success bool) (memory.Entry, error) {
	lock := s.keyLock(namespace, key)
	defer lock.Unlock()

	e, err := s.Get(ctx, namespace, key)
	if err != nil && !errors.Is(err, memory.ErrNotFound) {
		return memory.Entry{}, err
	}
	if errors.Is(err, memory.ErrNotFound) {
		e = memory.Entry{Namespace: namespace, Key: key, UpdatedAt: time.Now().UTC()}
	}

	e.Outcomes++
	if success {
		e.Successes++
	}
	e.UpdatedAt = time.Now().UTC()

	if err := s.upsert(ctx, e); err != nil {
		return memory.Entry{}, err
	}
	return e, nil
}

func (s *Store) upsert(ctx context.Context, e memory.Entry) error {
	const q = `
INSERT INTO preferences (namespace, key, value, updates, successes, outcomes, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(namespace, key) DO UPDATE SET
  value=excluded.value,
  updates=excluded.updates,
  successes=excluded.successes,
  outcomes=excluded.outcomes,
  updated_at=excluded.updated_at;
`
	_, err := s.db.ExecContext(
		ctx,
		q,
		e.Namespace,
		e.Key,
		e.Value,
		e.Updates,
		e.Successes,
		e.Outcomes,
		e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save preference: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, namespace string) ([]memory.Entry, error) {
	const q = `
SELECT namespace, key, value, updates, successes, outcomes, updated_at
FROM preferences
WHERE namespace = ?
ORDER BY key;
`
	rows, err := s.db.QueryContext(ctx, q, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	defer rows.Close()

	var out []memory.Entry
	for rows.Next() {
		var (
			e          memory.Entry
			updatedRaw string
		)
		if err := rows.Scan(
			&e.Namespace,
			&e.Key,
			&e.Value,
			&e.Updates,
			&e.Successes,
			&e.Outcomes,
			&updatedRaw,
		); err != nil {
			return nil, fmt.Errorf("failed to scan preference row: %w", err)
		}
		e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedRaw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse preference updated_at: %w", err)
		}
		e.UpdatedAt = e.UpdatedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate preferences: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
