// Package statestore persists workflow state and checkpoints.
//
// A Backend is a keyed byte store with optional expiry. Four backends ship:
// Memory for tests and single-process use, SQLite for local durability,
// Redis for shared deployments and Postgres for relational deployments.
// Manager layers workflow, node and checkpoint namespaces on top of any
// Backend.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend persists opaque values by key. Implementations must be safe for
// concurrent use. A ttl of zero means the value never expires; expired
// values behave as absent.
type Backend interface {
	// Save stores value under key, replacing any existing value.
	Save(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Load returns the value for key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key holds a live value.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns the live keys matching a glob pattern ("*" and "?"),
	// sorted.
	List(ctx context.Context, pattern string) ([]string, error)

	// Close releases connections and files.
	Close() error
}

// Sentinel errors.
var (
	// ErrNotFound indicates the key holds no live value.
	ErrNotFound = errors.New("state not found")

	// ErrClosed indicates the backend has been closed.
	ErrClosed = errors.New("state backend closed")

	// ErrInvalidTable indicates a table name that is not a plain SQL identifier.
	ErrInvalidTable = errors.New("invalid table name")

	// ErrInvalidRunID indicates a run id that is empty or contains a key
	// separator or glob metacharacter.
	ErrInvalidRunID = errors.New("invalid run id")
)

// ValidateRunID reports whether id can scope keys. Run ids are embedded
// in key patterns, so ':' and the glob metacharacters *?[]\ are refused.
func ValidateRunID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRunID)
	}
	if i := strings.IndexAny(id, ":*?[]\\"); i >= 0 {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidRunID, id, id[i])
	}
	return nil
}
