package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is a fixed-width UTC layout so stored timestamps sort and compare
// lexicographically in both dialects.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// NullableTime returns nil for the zero time so the column stays NULL.
func NullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return FormatTime(t)
}

// NullableString returns nil for blank strings so the column stays NULL.
func NullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

// ParseTime reads a stored timestamp; NULL or malformed values become the zero time.
func ParseTime(raw sql.NullString) time.Time {
	if !raw.Valid || raw.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// MarshalJSON encodes value for a TEXT column. Nil values stay NULL.
func MarshalJSON(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	return string(data), nil
}

// UnmarshalJSON decodes a nullable TEXT column into dst. NULL leaves dst untouched.
func UnmarshalJSON(raw sql.NullString, dst any) error {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), dst); err != nil {
		return fmt.Errorf("decode json column: %w", err)
	}
	return nil
}
