// Package query plans range and point-in-time reads over the
// multi-granularity bucket store.
package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/aevon-lab/rollupd/internal/core/aggregation"
)

// Range is a half-open interval [Start, End) of bucket starts in epoch millis.
type Range struct {
	Start int64
	End   int64
}

// AllTime selects every bucket.
var AllTime = Range{Start: math.MinInt64, End: math.MaxInt64}

// Contains reports whether start falls in r.
func (r Range) Contains(start int64) bool {
	return start >= r.Start && start < r.End
}

// Empty reports whether r selects nothing.
func (r Range) Empty() bool { return r.End <= r.Start }

// Intersect returns the overlap of r and o.
func (r Range) Intersect(o Range) Range {
	out := r
	if o.Start > out.Start {
		out.Start = o.Start
	}
	if o.End < out.End {
		out.End = o.End
	}
	return out
}

// ParseBound parses one range bound: epoch millis (or a numeric string) or a
// "yyyy-MM-dd HH:mm:ss[ +HH:MM]" date-time.
func ParseBound(s string) (int64, error) {
	ts, err := aggregation.ParseTimestampString(strings.TrimSpace(s))
	if err != nil {
		return 0, invalidQueryf("range bound %q: %v", s, err)
	}
	return ts, nil
}

// ParseRange builds the range between two bounds.
func ParseRange(start, end string) (Range, error) {
	s, err := ParseBound(start)
	if err != nil {
		return Range{}, err
	}
	e, err := ParseBound(end)
	if err != nil {
		return Range{}, err
	}
	if e < s {
		return Range{}, invalidQueryf("range end %q is before start %q", end, start)
	}
	return Range{Start: s, End: e}, nil
}

func invalidQueryf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", aggregation.ErrInvalidQuery, fmt.Sprintf(format, args...))
}
