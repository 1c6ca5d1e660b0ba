package config

import (
	"strconv"
	"strings"
	"time"
)

// Keys read by the dispatcher.
const (
	// KeyBlockingTimeout is the per-listener budget for blocking listeners.
	KeyBlockingTimeout = "timeout.blocking"

	// KeyEventTimeout is the budget for all blocking listeners of one tier.
	KeyEventTimeout = "timeout.event"
)

// Config is a read-only view over decoded settings. Every accessor falls
// back to its default when the key is absent or holds the wrong type.
//
// Keys may be dotted ("timeout.blocking"). A flat key is tried first, then
// the dotted path is walked through nested maps as produced by YAML.
type Config struct {
	data map[string]any
}

// New wraps data. A nil map gives an empty Config.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

func (c Config) lookup(key string) (any, bool) {
	if v, ok := c.data[key]; ok {
		return v, true
	}
	if !strings.Contains(key, ".") {
		return nil, false
	}

	var cur any = c.data
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string stored under key.
func (c Config) String(key, defaultVal string) string {
	v, ok := c.lookup(key)
	if !ok {
		return defaultVal
	}
	if s, ok := v.(string); ok {
		return s
	}
	return defaultVal
}

// Bool returns the boolean stored under key. Strings go through
// strconv.ParseBool so environment values work.
func (c Config) Bool(key string, defaultVal bool) bool {
	v, ok := c.lookup(key)
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// Int returns the integer stored under key. Whole float64 values (as decoded
// from JSON) and base-10 strings are converted.
func (c Config) Int(key string, defaultVal int) int {
	v, ok := c.lookup(key)
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return n
		}
	}
	return defaultVal
}

// Duration returns the duration stored under key. Strings go through
// time.ParseDuration and bare numbers are seconds.
func (c Config) Duration(key string, defaultVal time.Duration) time.Duration {
	v, ok := c.lookup(key)
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case string:
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	case float64:
		return time.Duration(val * float64(time.Second))
	case int:
		return time.Duration(val) * time.Second
	case int64:
		return time.Duration(val) * time.Second
	case time.Duration:
		return val
	}
	return defaultVal
}

// Millis is Duration with bare numbers read as milliseconds, which is how
// the timeout keys are documented.
//
// Accepts:
//   - int, int64, float64: milliseconds
//   - string: a bare integer is milliseconds, anything else goes through time.ParseDuration
//   - time.Duration: used directly
//
// Non-positive values return defaultVal.
func (c Config) Millis(key string, defaultVal time.Duration) time.Duration {
	v, ok := c.lookup(key)
	if !ok {
		return defaultVal
	}

	var d time.Duration
	switch val := v.(type) {
	case int:
		d = time.Duration(val) * time.Millisecond
	case int64:
		d = time.Duration(val) * time.Millisecond
	case float64:
		d = time.Duration(val * float64(time.Millisecond))
	case time.Duration:
		d = val
	case string:
		s := strings.TrimSpace(val)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			d = time.Duration(n) * time.Millisecond
		} else if parsed, err := time.ParseDuration(s); err == nil {
			d = parsed
		}
	}
	if d <= 0 {
		return defaultVal
	}
	return d
}

// Has reports whether key is set.
func (c Config) Has(key string) bool {
	_, ok := c.lookup(key)
	return ok
}

// Merge returns a Config with other's top-level keys layered over c's.
// Neither input is modified.
func (c Config) Merge(other Config) Config {
	merged := make(map[string]any, len(c.data)+len(other.data))
	for k, v := range c.data {
		merged[k] = v
	}
	for k, v := range other.data {
		merged[k] = v
	}
	return Config{data: merged}
}

// Raw exposes the wrapped map. Callers must not modify it.
func (c Config) Raw() map[string]any {
	return c.data
}
