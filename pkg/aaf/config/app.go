package config

import (
	"errors"
	"fmt"
	"time"
)

// App is the configuration of the aafd service.
type App struct {
	Server    Server    `yaml:"server" json:"server"`
	Run       Run       `yaml:"run" json:"run"`
	Store     Store     `yaml:"store" json:"store"`
	Telemetry Telemetry `yaml:"telemetry" json:"telemetry"`
	Log       Log       `yaml:"log" json:"log"`

	// Workflows lists declarative workflow files (.yaml, .yml, .json, .hcl)
	// loaded at startup.
	Workflows []string `yaml:"workflows" json:"workflows"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// RateLimit is the sustained requests per second allowed per client
	// IP. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" json:"rate_burst"`
}

// Run holds per-run defaults applied to every workflow execution.
type Run struct {
	// MaxIterations overrides the graph's iteration cap when > 0.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`
	// Timeout bounds a single run when > 0.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Checkpoint enables per-node checkpoints in the state store.
	Checkpoint bool `yaml:"checkpoint" json:"checkpoint"`
}

// Store selects and configures the state backend.
type Store struct {
	// Backend is one of memory, sqlite, redis, postgres.
	Backend  string        `yaml:"backend" json:"backend"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
	SQLite   SQLite        `yaml:"sqlite" json:"sqlite"`
	Redis    Redis         `yaml:"redis" json:"redis"`
	Postgres Postgres      `yaml:"postgres" json:"postgres"`
}

// SQLite configures the SQLite backend.
type SQLite struct {
	Path string `yaml:"path" json:"path"`
}

// Redis configures the Redis backend.
type Redis struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// Postgres configures the PostgreSQL backend.
type Postgres struct {
	DSN   string `yaml:"dsn" json:"dsn"`
	Table string `yaml:"table" json:"table"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ServiceName  string  `yaml:"service_name" json:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// Log configures service logging.
type Log struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`
	// Format is json or console.
	Format string `yaml:"format" json:"format"`
}

// Store backend names.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Default returns the built-in configuration.
func Default() App {
	return App{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateBurst:       20,
		},
		Run: Run{
			Timeout: 2 * time.Minute,
		},
		Store: Store{
			Backend: BackendMemory,
			TTL:     24 * time.Hour,
			SQLite:  SQLite{Path: "aaf.db"},
			Redis:   Redis{Addr: "localhost:6379", Prefix: "aaf:state:"},
			Postgres: Postgres{
				Table: "aaf_workflow_state",
			},
		},
		Telemetry: Telemetry{
			ServiceName:  "aafd",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Log: Log{Level: "info", Format: "json"},
	}
}

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Validate checks the configuration for values the service cannot start with.
func (a App) Validate() error {
	var errs []error
	if a.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("%w: server.addr is required", ErrInvalidConfig))
	}
	if a.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("%w: server.rate_limit must be >= 0", ErrInvalidConfig))
	}
	if a.Server.RateLimit > 0 && a.Server.RateBurst <= 0 {
		errs = append(errs, fmt.Errorf("%w: server.rate_burst must be > 0 when rate limiting", ErrInvalidConfig))
	}
	if a.Run.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("%w: run.max_iterations must be >= 0", ErrInvalidConfig))
	}
	if a.Run.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%w: run.timeout must be >= 0", ErrInvalidConfig))
	}
	switch a.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if a.Store.SQLite.Path == "" {
			errs = append(errs, fmt.Errorf("%w: store.sqlite.path is required", ErrInvalidConfig))
		}
	case BackendRedis:
		if a.Store.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("%w: store.redis.addr is required", ErrInvalidConfig))
		}
	case BackendPostgres:
		if a.Store.Postgres.DSN == "" {
			errs = append(errs, fmt.Errorf("%w: store.postgres.dsn is required", ErrInvalidConfig))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, a.Store.Backend))
	}
	if a.Telemetry.Enabled && a.Telemetry.OTLPEndpoint == "" {
		errs = append(errs, fmt.Errorf("%w: telemetry.otlp_endpoint is required when enabled", ErrInvalidConfig))
	}
	if a.Telemetry.SampleRate < 0 || a.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("%w: telemetry.sample_rate must be within [0, 1]", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}
