package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // register the pure-Go sqlite driver
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("storage: key not found")

// Store is the durable local key-value store every stateful component sits
// on: the outbound event queue, the snapshot cache, the auth token and the
// configured endpoint each live under a single key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Well-known keys.
const (
	KeyAuthToken = "auth_token"
	KeyEndpoint  = "endpoint_url"
	KeyQueue     = "event_queue"
	KeySnapshot  = "snapshot"
)

// SQLite persists keys in a single-table SQLite database. The pure-Go driver
// keeps the client tool free of cgo.
type SQLite struct {
	db         *sql.DB
	maxRetries int
	retryDelay time.Duration
}

// SQLiteOption configures the store.
type SQLiteOption func(*SQLite)

// WithBusyRetries sets the retry count for SQLITE_BUSY failures.
func WithBusyRetries(n int, delay time.Duration) SQLiteOption {
	return func(s *SQLite) {
		s.maxRetries = n
		s.retryDelay = delay
	}
}

// OpenSQLite opens (creating if needed) the database file inside dir.
func OpenSQLite(dir string, opts ...SQLiteOption) (*SQLite, error) {
	db, err := sql.Open("sqlite", filepath.Join(dir, "planboard.db"))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under the serialized access pattern
	// the core already guarantees.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, maxRetries: 3, retryDelay: 50 * time.Millisecond}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
                key TEXT PRIMARY KEY,
                value BLOB NOT NULL,
                updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}

	return s, nil
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Put implements Store.
func (s *SQLite) Put(ctx context.Context, key string, value []byte) error {
	return s.retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
                        INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
                        ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
			key, value)
		return err
	})
}

// Delete implements Store.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	return s.retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
		return err
	})
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) retry(ctx context.Context, fn func() error) error {
	delay := s.retryDelay
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func isBusy(err error) bool {
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

// Memory is an in-process Store used by tests and by callers that opt out of
// durability.
type Memory struct {
	mu     sync.Mutex
	values map[string][]byte
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
