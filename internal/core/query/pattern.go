package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aevon-lab/rollupd/internal/core/aggregation"
)

// patternRe matches "yyyy-MM-dd HH:mm:ss[ +HH:MM]" where any field may be
// replaced by stars.
var patternRe = regexp.MustCompile(`^(\d{4}|\*{2,4})-(\d{2}|\*\*)-(\d{2}|\*\*) (\d{2}|\*\*):(\d{2}|\*\*):(\d{2}|\*\*)(?: ([+-]\d{2}:\d{2}))?$`)

type field int

const (
	fieldYear field = iota
	fieldMonth
	fieldDay
	fieldHour
	fieldMinute
	fieldSecond
	fieldCount
)

var fieldNames = [fieldCount]string{"year", "month", "day", "hour", "minute", "second"}

var fieldLimits = [fieldCount][2]int{
	{0, 9999},
	{1, 12},
	{1, 31},
	{0, 23},
	{0, 59},
	{0, 59},
}

// predicate requires one calendar field of a bucket start to equal value.
type predicate struct {
	field field
	value int
}

// Pattern is a parsed wildcard time pattern. The fixed leading fields become
// a concrete range; fixed fields after the first wildcard become calendar
// predicates evaluated in the pattern's zone.
type Pattern struct {
	source     string
	rng        Range
	predicates []predicate
	loc        *time.Location
}

// IsPattern reports whether s is written as a wildcard pattern.
func IsPattern(s string) bool {
	return strings.Contains(s, "*")
}

// ParsePattern parses and validates a wildcard time pattern. Patterns without
// an offset are read in UTC.
func ParsePattern(s string) (*Pattern, error) {
	m := patternRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil, invalidQueryf("malformed time pattern %q", s)
	}

	loc := time.UTC
	if m[7] != "" {
		var err error
		if loc, err = aggregation.ParseLocation(m[7]); err != nil {
			return nil, invalidQueryf("time pattern %q: %v", s, err)
		}
	}

	var values [fieldCount]int
	var fixed [fieldCount]bool
	for f := fieldYear; f < fieldCount; f++ {
		raw := m[int(f)+1]
		if strings.HasPrefix(raw, "*") {
			continue
		}
		v, _ := strconv.Atoi(raw)
		if v < fieldLimits[f][0] || v > fieldLimits[f][1] {
			return nil, invalidQueryf("time pattern %q: %s %d out of range", s, fieldNames[f], v)
		}
		values[f] = v
		fixed[f] = true
	}

	prefix := fieldYear
	for prefix < fieldCount && fixed[prefix] {
		prefix++
	}

	p := &Pattern{source: s, loc: loc, rng: AllTime}
	if prefix > fieldYear {
		start, err := prefixStart(values, prefix, loc)
		if err != nil {
			return nil, invalidQueryf("time pattern %q: %v", s, err)
		}
		p.rng = Range{Start: start.UnixMilli(), End: advance(start, prefix-1).UnixMilli()}
	}
	for f := prefix + 1; f < fieldCount; f++ {
		if fixed[f] {
			p.predicates = append(p.predicates, predicate{field: f, value: values[f]})
		}
	}
	return p, nil
}

// prefixStart builds the first instant matched by the fixed leading fields
// and rejects dates the calendar would normalize, such as June 31.
func prefixStart(values [fieldCount]int, prefix field, loc *time.Location) (time.Time, error) {
	v := values
	for f := prefix; f < fieldCount; f++ {
		v[f] = 0
	}
	if prefix <= fieldMonth {
		v[fieldMonth] = 1
	}
	if prefix <= fieldDay {
		v[fieldDay] = 1
	}
	t := time.Date(v[fieldYear], time.Month(v[fieldMonth]), v[fieldDay], v[fieldHour], v[fieldMinute], v[fieldSecond], 0, loc)
	if t.Day() != v[fieldDay] || int(t.Month()) != v[fieldMonth] {
		return time.Time{}, fmt.Errorf("%04d-%02d-%02d is not a calendar date", v[fieldYear], v[fieldMonth], v[fieldDay])
	}
	return t, nil
}

// advance moves t forward by one unit of the given field.
func advance(t time.Time, f field) time.Time {
	switch f {
	case fieldYear:
		return t.AddDate(1, 0, 0)
	case fieldMonth:
		return t.AddDate(0, 1, 0)
	case fieldDay:
		return t.AddDate(0, 0, 1)
	case fieldHour:
		return t.Add(time.Hour)
	case fieldMinute:
		return t.Add(time.Minute)
	default:
		return t.Add(time.Second)
	}
}

// Range returns the concrete range covered by the fixed leading fields.
func (p *Pattern) Range() Range { return p.rng }

// String returns the pattern as written.
func (p *Pattern) String() string { return p.source }

// Matches reports whether a bucket starting at start satisfies the pattern.
func (p *Pattern) Matches(start int64) bool {
	if !p.rng.Contains(start) {
		return false
	}
	if len(p.predicates) == 0 {
		return true
	}
	t := time.UnixMilli(start).In(p.loc)
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	actual := [fieldCount]int{y, int(mo), d, h, mi, s}
	for _, pr := range p.predicates {
		if actual[pr.field] != pr.value {
			return false
		}
	}
	return true
}
