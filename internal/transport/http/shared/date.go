package shared

import (
	"fmt"
	"time"
)

// ParseDate accepts RFC3339 or YYYY-MM-DD.
func ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	return time.Parse("2006-01-02", value)
}

// ParseOptionalDate returns nil for an empty value. A bare date used as an
// upper bound covers the whole day.
func ParseOptionalDate(field, value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := ParseDate(value)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC3339 or YYYY-MM-DD", field)
	}
	if endOfDay && len(value) == len("2006-01-02") {
		parsed = parsed.Add(24*time.Hour - time.Nanosecond)
	}
	return &parsed, nil
}
