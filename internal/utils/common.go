package utils

import (
	"fmt"
	"strings"
	"time"
)

// FormatMegabytes renders a byte count as megabytes with two decimals, e.g. "2.00MB".
func FormatMegabytes(size int64) string {
	if size < 0 {
		size = 0
	}
	return fmt.Sprintf("%.2fMB", float64(size)/1024/1024)
}

// Truncate shortens s to at most limit bytes, appending "..." when cut.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return s[:limit]
	}
	return s[:limit-3] + "..."
}

// ClockTime renders t as a 24h HH:MM:SS stamp.
func ClockTime(t time.Time) string {
	return t.Format("15:04:05")
}

// RemoveControlCharacters drops control characters except newline, carriage return and tab.
func RemoveControlCharacters(text string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, text)
}

// MinDuration returns the smaller of two durations.
func MinDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
