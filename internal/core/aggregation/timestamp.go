package aggregation

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/shopspring/decimal"
)

// Date-time layouts accepted for event timestamps and query bounds, tried in
// order. Strings without an offset are read as UTC.
var timestampLayouts = []string{
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02 15:04:05.000 -07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	time.RFC3339Nano,
}

// Event times must fall in years 0001 through 9999 UTC, the span calendar
// alignment and query patterns cover.
var (
	MinTimestampMillis = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	MaxTimestampMillis = time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli() - 1

	minMillisDecimal = decimal.NewFromInt(MinTimestampMillis)
	maxMillisDecimal = decimal.NewFromInt(MaxTimestampMillis)
)

// ParseTimestamp converts an event timestamp to epoch millis. Accepted forms:
// epoch millis as a number or numeric string, "yyyy-MM-dd HH:mm:ss" with an
// optional " +HH:MM" offset, RFC 3339, and anything dateparse recognizes.
func ParseTimestamp(v interface{}) (int64, error) {
	switch val := v.(type) {
	case nil:
		return 0, fmt.Errorf("%w: missing", ErrInvalidTimestamp)
	case int64:
		return checkMillis(val)
	case int:
		return checkMillis(int64(val))
	case int32:
		return checkMillis(int64(val))
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) ||
			val < float64(MinTimestampMillis) || val > float64(MaxTimestampMillis) {
			return 0, fmt.Errorf("%w: %v out of range", ErrInvalidTimestamp, val)
		}
		return int64(val), nil
	case json.Number:
		return parseMillis(val.String())
	case time.Time:
		return checkMillis(val.UnixMilli())
	case string:
		return ParseTimestampString(val)
	}
	return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidTimestamp, v)
}

// ParseTimestampString parses the string forms accepted by ParseTimestamp.
func ParseTimestampString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}
	if isNumeric(s) {
		return parseMillis(s)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return checkMillis(t.UnixMilli())
		}
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	return checkMillis(t.UnixMilli())
}

// parseMillis parses epoch millis written as a decimal number, rejecting
// values outside the supported span before truncating the fraction.
func parseMillis(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	if d.LessThan(minMillisDecimal) || d.GreaterThan(maxMillisDecimal) {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidTimestamp, s)
	}
	return d.IntPart(), nil
}

func checkMillis(ms int64) (int64, error) {
	if ms < MinTimestampMillis || ms > MaxTimestampMillis {
		return 0, fmt.Errorf("%w: %d out of range", ErrInvalidTimestamp, ms)
	}
	return ms, nil
}

func isNumeric(s string) bool {
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.':
		case r == '-' && i == 0:
		default:
			return false
		}
	}
	return true
}
