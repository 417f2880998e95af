/*
Package config provides typed value extraction and the aafd service
configuration.

# Values

Values wraps a map[string]any with accessors that fall back to a default
when a key is missing or holds the wrong type:

	v := config.Values{"timeout": "30s", "retries": 3.0}
	v.Duration("timeout", time.Second) // 30s
	v.Int("retries", 1)                // 3
	v.String("missing", "default")     // "default"

Numbers decoded from JSON arrive as float64; Int accepts them as long as
they have no fractional part.

# Service configuration

Load reads an App from YAML or JSON, starting from Default and finishing
with AAF_* environment overrides:

	cfg, err := config.Load("aafd.yaml")
	if err != nil {
	    log.Fatal(err)
	}

Recognized variables: AAF_SERVER_ADDR, AAF_STORE_BACKEND, AAF_SQLITE_PATH,
AAF_REDIS_ADDR, AAF_REDIS_PASSWORD, AAF_POSTGRES_DSN, AAF_OTLP_ENDPOINT,
AAF_LOG_LEVEL, AAF_MAX_ITERATIONS, AAF_TELEMETRY_ENABLED.
*/
package config
