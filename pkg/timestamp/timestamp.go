// Package timestamp provides standardized Unix timestamp handling.
//
// Timestamps are carried as int64 milliseconds since the Unix epoch (UTC).
// A value of 0 means "not set"; functions handle zero values gracefully.
package timestamp

import (
	"strconv"
	"time"
)

// Now returns the current time as Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// ToUnixMs converts a time.Time to Unix milliseconds.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to time.Time.
// Returns zero time if timestamp is 0.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// ToTime is an alias for FromUnixMs for better readability.
func ToTime(ms int64) time.Time {
	return FromUnixMs(ms)
}

// Format converts Unix milliseconds to an RFC3339 string for display.
// Returns empty string if timestamp is 0.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// Parse converts various timestamp representations to Unix milliseconds.
// Supports int64/float64 (milliseconds if > 1e12, otherwise seconds),
// numeric strings, and RFC3339 strings. Returns 0 for anything else.
func Parse(v any) int64 {
	switch t := v.(type) {
	case int64:
		return normalize(t)
	case float64:
		return normalize(int64(t))
	case int:
		return normalize(int64(t))
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return normalize(n)
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed.UnixMilli()
		}
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.UnixMilli()
		}
		return 0
	case time.Time:
		return ToUnixMs(t)
	default:
		return 0
	}
}

// normalize treats values above 1e12 as milliseconds and smaller positive
// values as seconds.
func normalize(n int64) int64 {
	if n <= 0 {
		return 0
	}
	if n > 1_000_000_000_000 {
		return n
	}
	return n * 1000
}
