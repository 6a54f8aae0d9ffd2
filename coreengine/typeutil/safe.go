// Package typeutil provides safe lookups over decoded map[string]any values.
// Config files, gRPC Struct payloads and LLM JSON replies all decode into
// untyped maps; these helpers read them without panicking on a bad cast.
// Truncate shortens free text for logs and error messages.
package typeutil

import (
	"strconv"
	"strings"
	"time"
)

// Int reads key from m as an int.
// Accepts the integer kinds, float64 (JSON) and numeric strings (env files).
func Int(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

// Float64 reads key from m as a float64.
func Float64(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// String reads key from m as a string. Non-string values are rejected.
func String(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// StringDefault is String with a fallback.
func StringDefault(m map[string]any, key, defaultVal string) string {
	if s, ok := String(m, key); ok {
		return s
	}
	return defaultVal
}

// Seconds reads key from m as a duration.
// Numbers are seconds; strings may be either "30" or a Go duration like "1m30s".
func Seconds(m map[string]any, key string) (time.Duration, bool) {
	if s, ok := String(m, key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	if f, ok := Float64(m, key); ok {
		return time.Duration(f * float64(time.Second)), true
	}
	return 0, false
}
