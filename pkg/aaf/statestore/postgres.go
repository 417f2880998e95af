package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

// PostgresBackend stores state in a PostgreSQL table. Expired rows are
// hidden from reads and removed by CleanupExpired.
type PostgresBackend struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

var _ Backend = (*PostgresBackend)(nil)

// OpenPostgres opens dsn with the pgx driver and returns a backend using
// table (DefaultTable if empty).
func OpenPostgres(ctx context.Context, dsn, table string) (*PostgresBackend, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	p, err := NewPostgresBackend(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgresBackend initializes the schema in db and returns a backend.
// The caller provides a *sql.DB using a PostgreSQL driver.
func NewPostgresBackend(db *sql.DB, table string) (*PostgresBackend, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTable(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	p := &PostgresBackend{db: db, table: table, now: time.Now}
	if err := p.initSchema(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PostgresBackend) initSchema() error {
	if _, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS ` + p.table + ` (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ NULL
		);
	`); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	if _, err := p.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_` + p.table + `_expires_at
		ON ` + p.table + ` (expires_at)
		WHERE expires_at IS NOT NULL;
	`); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Save implements Backend.
func (p *PostgresBackend) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := p.now().UTC()
	var expires sql.NullTime
	if ttl > 0 {
		expires = sql.NullTime{Time: now.Add(ttl), Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO `+p.table+` (key, value, updated_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at
	`, key, value, now, expires)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Load implements Backend.
func (p *PostgresBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.db.QueryRowContext(ctx, `
		SELECT value FROM `+p.table+`
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)
	`, key, p.now().UTC()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return value, nil
}

// Delete implements Backend.
func (p *PostgresBackend) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM `+p.table+` WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

// Exists implements Backend.
func (p *PostgresBackend) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := p.db.QueryRowContext(ctx, `
		SELECT 1 FROM `+p.table+`
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)
	`, key, p.now().UTC()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check state: %w", err)
	}
	return true, nil
}

// List implements Backend. The glob pattern is translated to LIKE.
func (p *PostgresBackend) List(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT key FROM `+p.table+`
		WHERE key LIKE $1 ESCAPE '\'
		AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY key
	`, globToLike(pattern), p.now().UTC())
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
func (p *PostgresBackend) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM `+p.table+`
		WHERE expires_at IS NOT NULL AND expires_at <= $1
	`, p.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired: %w", err)
	}
	return res.RowsAffected()
}

// Close implements Backend.
func (p *PostgresBackend) Close() error {
	return p.db.Close()
}
