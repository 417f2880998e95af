package statestore

import (
	"context"
	"fmt"

	"github.com/swar00pduthks/Aaf/pkg/aaf/config"
)

// Open creates the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.Store) (Backend, error) {
	switch cfg.Backend {
	case "", config.BackendMemory:
		return NewMemoryBackend(), nil
	case config.BackendSQLite:
		return NewSQLiteBackend(cfg.SQLite.Path)
	case config.BackendRedis:
		return NewRedisBackend(ctx, RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	case config.BackendPostgres:
		return OpenPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.Table)
	}
	return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalidConfig, cfg.Backend)
}
