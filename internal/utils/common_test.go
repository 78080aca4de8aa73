package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatMegabytes(t *testing.T) {
	assert.Equal(t, "2.00MB", FormatMegabytes(2*1024*1024))
	assert.Equal(t, "0.50MB", FormatMegabytes(512*1024))
	assert.Equal(t, "0.00MB", FormatMegabytes(-1))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcd...", Truncate("abcdefghij", 7))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "abcdef", Truncate("abcdef", 0))
}

func TestClockTime(t *testing.T) {
	ts := time.Date(2026, 10, 19, 7, 5, 9, 0, time.UTC)
	assert.Equal(t, "07:05:09", ClockTime(ts))
}

func TestRemoveControlCharacters(t *testing.T) {
	assert.Equal(t, "a\nb\tc", RemoveControlCharacters("a\nb\tc\x00\x07"))
}

func TestMinDuration_BothPositive(t *testing.T) {
	a := 100 * time.Millisecond
	b := 200 * time.Millisecond

	assert.Equal(t, a, MinDuration(a, b), "Should return the smaller duration")
	assert.Equal(t, a, MinDuration(b, a), "Order should not matter")
}
