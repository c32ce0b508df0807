package aggregation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	// 2017-06-01 04:05:50 UTC
	const want = int64(1496289950000)

	tests := []struct {
		name  string
		input interface{}
	}{
		{name: "epoch millis int64", input: int64(want)},
		{name: "epoch millis float64", input: float64(want)},
		{name: "epoch millis json number", input: json.Number("1496289950000")},
		{name: "epoch millis string", input: "1496289950000"},
		{name: "naive string is UTC", input: "2017-06-01 04:05:50"},
		{name: "string with offset", input: "2017-06-01 09:35:50 +05:30"},
		{name: "string with negative offset", input: "2017-06-01 00:05:50 -04:00"},
		{name: "rfc3339", input: "2017-06-01T04:05:50Z"},
		{name: "time value", input: time.UnixMilli(want)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTimestamp(tc.input)
			require.NoError(t, err)
			require.Equal(t, want, got)
		})
	}
}

func TestParseTimestamp_OutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
	}{
		{name: "huge json number", input: json.Number("1e30")},
		{name: "huge numeric string", input: "99999999999999999999999"},
		{name: "huge float", input: 1e300},
		{name: "negative huge float", input: -1e300},
		{name: "int64 max", input: int64(math.MaxInt64)},
		{name: "int64 min", input: int64(math.MinInt64)},
		{name: "one past year 9999", input: MaxTimestampMillis + 1},
		{name: "one before year 1", input: json.Number(fmt.Sprint(MinTimestampMillis - 1))},
		{name: "time beyond year 9999", input: time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTimestamp(tc.input)
			require.ErrorIs(t, err, ErrInvalidTimestamp)
		})
	}
}

func TestParseTimestamp_SpanBoundaries(t *testing.T) {
	got, err := ParseTimestamp(MaxTimestampMillis)
	require.NoError(t, err)
	require.Equal(t, MaxTimestampMillis, got)

	got, err = ParseTimestamp(fmt.Sprint(MinTimestampMillis))
	require.NoError(t, err)
	require.Equal(t, MinTimestampMillis, got)

	got, err = ParseTimestamp("9999-12-31 23:59:59")
	require.NoError(t, err)
	require.Equal(t, MaxTimestampMillis-999, got)
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, input := range []interface{}{nil, "", "not a time", true, []int{1}} {
		_, err := ParseTimestamp(input)
		require.Error(t, err, "input %v", input)
		require.True(t, errors.Is(err, ErrInvalidTimestamp), "input %v", input)
	}
}
