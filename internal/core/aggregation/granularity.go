package aggregation

import (
	"fmt"
	"strings"
	"time"
)

// Granularity is one of the calendar-aligned bucket widths an aggregation is
// materialized at. Values are ordered finest to coarsest.
type Granularity int

const (
	Second Granularity = iota
	Minute
	Hour
	Day
	Month
	Year
)

// Ladder lists every supported granularity, finest first.
var Ladder = []Granularity{Second, Minute, Hour, Day, Month, Year}

var granularityNames = map[Granularity]string{
	Second: "seconds",
	Minute: "minutes",
	Hour:   "hours",
	Day:    "days",
	Month:  "months",
	Year:   "years",
}

// granularityAliases accepts the names used in definitions and queries.
var granularityAliases = map[string]Granularity{
	"sec": Second, "second": Second, "seconds": Second,
	"min": Minute, "minute": Minute, "minutes": Minute,
	"hour": Hour, "hours": Hour,
	"day": Day, "days": Day,
	"month": Month, "months": Month,
	"year": Year, "years": Year,
}

// String returns the plural lower-case name, e.g. "minutes".
func (g Granularity) String() string {
	if n, ok := granularityNames[g]; ok {
		return n
	}
	return fmt.Sprintf("granularity(%d)", int(g))
}

// Valid reports whether g is one of the supported granularities.
func (g Granularity) Valid() bool {
	_, ok := granularityNames[g]
	return ok
}

// MarshalText encodes the granularity by name so JSON responses read "minutes".
func (g Granularity) MarshalText() ([]byte, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("unknown granularity %d", int(g))
	}
	return []byte(g.String()), nil
}

// UnmarshalText accepts any alias understood by ParseGranularity.
func (g *Granularity) UnmarshalText(text []byte) error {
	parsed, err := ParseGranularity(string(text))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// ParseGranularity resolves a granularity name or alias, case-insensitively.
func ParseGranularity(s string) (Granularity, error) {
	g, ok := granularityAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown granularity %q", s)
	}
	return g, nil
}

// ParseGranularities parses either a range expression ("sec...year") or a
// comma separated list ("seconds, minutes"). The result is sorted finest
// first and contains no duplicates.
func ParseGranularities(s string) ([]Granularity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("granularities must not be empty")
	}

	if from, to, ok := strings.Cut(s, "..."); ok {
		lo, err := ParseGranularity(from)
		if err != nil {
			return nil, err
		}
		hi, err := ParseGranularity(to)
		if err != nil {
			return nil, err
		}
		if lo > hi {
			return nil, fmt.Errorf("granularity range %q runs coarse to fine", s)
		}
		out := make([]Granularity, 0, int(hi-lo)+1)
		for g := lo; g <= hi; g++ {
			out = append(out, g)
		}
		return out, nil
	}

	return NormalizeGranularities(strings.Split(s, ","))
}

// NormalizeGranularities parses each name and returns the set ordered finest first.
func NormalizeGranularities(names []string) ([]Granularity, error) {
	seen := make(map[Granularity]bool, len(names))
	for _, n := range names {
		g, err := ParseGranularity(n)
		if err != nil {
			return nil, err
		}
		seen[g] = true
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("granularities must not be empty")
	}
	out := make([]Granularity, 0, len(seen))
	for _, g := range Ladder {
		if seen[g] {
			out = append(out, g)
		}
	}
	return out, nil
}

// BucketStart returns the start, in epoch millis, of the calendar interval of
// width g containing ts. Alignment is computed in loc; a nil loc means UTC.
// Example: BucketStart(10:35:42.120, Minute, UTC) → 10:35:00.000
func BucketStart(ts int64, g Granularity, loc *time.Location) int64 {
	return AlignTime(time.UnixMilli(ts), g, loc).UnixMilli()
}

// AlignTime truncates t to the start of its g-wide calendar interval in loc.
func AlignTime(t time.Time, g Granularity, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	y, mo, d := t.Date()
	h, mi, s := t.Clock()

	switch g {
	case Second:
		return time.Date(y, mo, d, h, mi, s, 0, loc)
	case Minute:
		return time.Date(y, mo, d, h, mi, 0, 0, loc)
	case Hour:
		return time.Date(y, mo, d, h, 0, 0, 0, loc)
	case Day:
		return time.Date(y, mo, d, 0, 0, 0, 0, loc)
	case Month:
		return time.Date(y, mo, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	}
}

// NextBucketStart returns the start of the interval following the one that
// starts at start.
func NextBucketStart(start int64, g Granularity, loc *time.Location) int64 {
	if loc == nil {
		loc = time.UTC
	}
	t := time.UnixMilli(start).In(loc)
	switch g {
	case Second:
		t = t.Add(time.Second)
	case Minute:
		t = t.Add(time.Minute)
	case Hour:
		t = t.Add(time.Hour)
	case Day:
		t = t.AddDate(0, 0, 1)
	case Month:
		t = t.AddDate(0, 1, 0)
	default:
		t = t.AddDate(1, 0, 0)
	}
	return AlignTime(t, g, loc).UnixMilli()
}

// ParseLocation accepts an IANA zone name ("Asia/Colombo"), "UTC", or a
// fixed offset ("+05:30").
func ParseLocation(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "utc") || s == "Z" {
		return time.UTC, nil
	}
	if s[0] == '+' || s[0] == '-' {
		t, err := time.Parse("-07:00", s)
		if err != nil {
			return nil, fmt.Errorf("invalid zone offset %q: %w", s, err)
		}
		_, offset := t.Zone()
		return time.FixedZone(s, offset), nil
	}
	loc, err := time.LoadLocation(s)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone %q: %w", s, err)
	}
	return loc, nil
}
