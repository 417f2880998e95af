package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// DefaultTable is the table used by the SQL backends.
const DefaultTable = "aaf_workflow_state"

// SQLiteBackend persists state to a SQLite database. It suits
// single-process deployments. Use ":memory:" as path for tests.
type SQLiteBackend struct {
	db     *sql.DB
	table  string
	mu     sync.RWMutex
	closed bool
	now    func() time.Time
}

var _ Backend = (*SQLiteBackend)(nil)

// NewSQLiteBackend opens path and creates the state table if needed.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteBackend{db: db, table: DefaultTable, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteBackend) initSchema() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at INTEGER NOT NULL,
			expires_at INTEGER
		)
	`); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_` + s.table + `_expires_at
		ON ` + s.table + `(expires_at)
	`); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) expiry(ttl time.Duration) any {
	if ttl <= 0 {
		return nil
	}
	return s.now().Add(ttl).UnixNano()
}

// Save implements Backend.
func (s *SQLiteBackend) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO `+s.table+` (key, value, updated_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at
	`, key, value, s.now().UnixNano(), s.expiry(ttl))
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Load implements Backend.
func (s *SQLiteBackend) Load(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var value []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM `+s.table+`
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)
	`, key, s.now().UnixNano()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return value, nil
}

// Delete implements Backend.
func (s *SQLiteBackend) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

// Exists implements Backend.
func (s *SQLiteBackend) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM `+s.table+`
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)
	`, key, s.now().UnixNano()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check state: %w", err)
	}
	return true, nil
}

// List implements Backend using SQLite GLOB matching.
func (s *SQLiteBackend) List(ctx context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if pattern == "" {
		pattern = "*"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM `+s.table+`
		WHERE key GLOB ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY key
	`, pattern, s.now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("list state: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

// CleanupExpired deletes expired rows and returns how many were removed.
func (s *SQLiteBackend) CleanupExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM `+s.table+`
		WHERE expires_at IS NOT NULL AND expires_at <= ?
	`, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired: %w", err)
	}
	return res.RowsAffected()
}

// Close implements Backend.
func (s *SQLiteBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
