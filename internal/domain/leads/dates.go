package leads

import (
	"strings"
	"time"
)

// DayLayout is the normalized calendar day form used for date comparisons.
const DayLayout = "2006-01-02"

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 03:04:05 PM",
	"2006-01-02 03:04 PM",
	DayLayout,
}

// ParseTimestamp parses the timestamp shapes the backend emits. Zoned
// values are converted to UTC.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// NormalizeDay maps a raw timestamp to YYYY-MM-DD, or "" when unparseable.
func NormalizeDay(raw string) string {
	t, ok := ParseTimestamp(raw)
	if !ok {
		return ""
	}
	return t.Format(DayLayout)
}

// ValidDay reports whether day is a YYYY-MM-DD calendar day.
func ValidDay(day string) bool {
	_, err := time.Parse(DayLayout, day)
	return err == nil
}
