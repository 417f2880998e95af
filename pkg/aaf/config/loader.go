package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the service configuration from path, layered over Default
// and followed by AAF_* environment overrides. An empty path skips the
// file. JSON files are accepted since JSON is a subset of YAML.
func Load(path string) (App, error) {
	cfg := Default()
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		switch ext {
		case ".yaml", ".yml", ".json":
		default:
			return App{}, fmt.Errorf("unsupported config file extension: %s", ext)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return App{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return App{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return App{}, err
	}
	if err := cfg.Validate(); err != nil {
		return App{}, err
	}
	return cfg, nil
}

// FromYAML parses a YAML (or JSON) document into Values.
func FromYAML(data []byte) (Values, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if m == nil {
		m = make(map[string]any)
	}
	return Values(m), nil
}

// FromFile loads Values from a .yaml, .yml or .json file.
func FromFile(path string) (Values, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml", ".json":
	default:
		return nil, fmt.Errorf("unsupported config file extension: %s", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return FromYAML(data)
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *App, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	str("AAF_SERVER_ADDR", &cfg.Server.Addr)
	str("AAF_STORE_BACKEND", &cfg.Store.Backend)
	str("AAF_SQLITE_PATH", &cfg.Store.SQLite.Path)
	str("AAF_REDIS_ADDR", &cfg.Store.Redis.Addr)
	str("AAF_REDIS_PASSWORD", &cfg.Store.Redis.Password)
	str("AAF_POSTGRES_DSN", &cfg.Store.Postgres.DSN)
	str("AAF_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	str("AAF_LOG_LEVEL", &cfg.Log.Level)

	if v, ok := lookup("AAF_MAX_ITERATIONS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: AAF_MAX_ITERATIONS: %v", ErrInvalidConfig, err)
		}
		cfg.Run.MaxIterations = n
	}
	if v, ok := lookup("AAF_TELEMETRY_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: AAF_TELEMETRY_ENABLED: %v", ErrInvalidConfig, err)
		}
		cfg.Telemetry.Enabled = b
	}
	return nil
}
