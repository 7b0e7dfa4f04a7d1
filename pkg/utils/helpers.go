package utils

import (
	"strings"
	"time"
)

// ParseDuration safely parses a duration string like "5m", returning
// fallback for empty or malformed input
func ParseDuration(d string, fallback time.Duration) time.Duration {
	d = strings.TrimSpace(d)
	if d == "" {
		return fallback
	}
	duration, err := time.ParseDuration(d)
	if err != nil || duration < 0 {
		return fallback
	}
	return duration
}

// CeilDiv returns ceil(a/b) for non-negative a and positive b
func CeilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
