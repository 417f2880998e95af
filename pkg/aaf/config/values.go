package config

import (
	"encoding/json"
	"time"
)

// Values is a loosely typed mapping with typed accessors. Every accessor
// returns defaultVal when the key is missing or the value cannot be
// converted without loss.
//
// Values is the lookup layer under workflow state, so it accepts the
// shapes produced by encoding/json, gopkg.in/yaml.v3 and hand-built maps.
type Values map[string]any

// String returns the string value for key.
func (v Values) String(key, defaultVal string) string {
	if s, ok := v[key].(string); ok {
		return s
	}
	return defaultVal
}

// Bool returns the boolean value for key.
func (v Values) Bool(key string, defaultVal bool) bool {
	if b, ok := v[key].(bool); ok {
		return b
	}
	return defaultVal
}

// Int returns the integer value for key. Floats are accepted only when
// they carry no fractional part.
func (v Values) Int(key string, defaultVal int) int {
	raw, ok := v[key]
	if !ok {
		return defaultVal
	}
	if i, ok := AsInt64(raw); ok {
		return int(i)
	}
	return defaultVal
}

// Float returns the float64 value for key.
func (v Values) Float(key string, defaultVal float64) float64 {
	raw, ok := v[key]
	if !ok {
		return defaultVal
	}
	if f, ok := AsFloat64(raw); ok {
		return f
	}
	return defaultVal
}

// Duration returns the duration value for key.
//
// Accepts:
//   - string: parsed with time.ParseDuration
//   - integers and floats: interpreted as seconds
//   - time.Duration: used directly
func (v Values) Duration(key string, defaultVal time.Duration) time.Duration {
	raw, ok := v[key]
	if !ok {
		return defaultVal
	}
	switch val := raw.(type) {
	case time.Duration:
		return val
	case string:
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		return defaultVal
	}
	if f, ok := AsFloat64(raw); ok {
		return time.Duration(f * float64(time.Second))
	}
	return defaultVal
}

// StringSlice returns the string slice for key. A []any qualifies only
// when every element is a string.
func (v Values) StringSlice(key string, defaultVal []string) []string {
	switch val := v[key].(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return defaultVal
			}
			out = append(out, s)
		}
		return out
	}
	return defaultVal
}

// Map returns the nested mapping for key.
func (v Values) Map(key string) Values {
	switch val := v[key].(type) {
	case map[string]any:
		return Values(val)
	case Values:
		return val
	}
	return nil
}

// Has returns true if the key exists.
func (v Values) Has(key string) bool {
	_, ok := v[key]
	return ok
}

// AsInt64 converts any Go or decoded numeric value to int64.
func AsInt64(raw any) (int64, bool) {
	switch val := raw.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		return int64(val), val <= 1<<63-1
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), val <= 1<<63-1
	case float32:
		return floatToInt(float64(val))
	case float64:
		return floatToInt(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, true
		}
		if f, err := val.Float64(); err == nil {
			return floatToInt(f)
		}
	}
	return 0, false
}

// AsFloat64 converts any Go or decoded numeric value to float64.
func AsFloat64(raw any) (float64, bool) {
	switch val := raw.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	}
	if i, ok := AsInt64(raw); ok {
		return float64(i), true
	}
	return 0, false
}

func floatToInt(f float64) (int64, bool) {
	if f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}
