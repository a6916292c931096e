package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateUUID returns a new random task/record identifier.
func GenerateUUID() string {
	return uuid.NewString()
}

// timestampLayouts are tried in order when parsing model-produced or
// source-produced timestamps. Date-only values resolve to midnight UTC.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses a timestamp string in any accepted layout. Returns
// nil for empty, null-ish, or unparseable input; bad date strings are a
// defensive-default case, never an error.
func ParseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// PadPosition renders a non-negative integer position as a fixed-width
// decimal string so cursor positions compare correctly as plain strings.
func PadPosition(v int64, width int) string {
	return fmt.Sprintf("%0*d", width, v)
}

// Truncate caps s at max characters. Truncation is silent and expected;
// it bounds downstream prompt size, it is not an error.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}
