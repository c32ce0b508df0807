package query

import (
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aevon-lab/rollupd/internal/core/aggregation"
	"github.com/aevon-lab/rollupd/internal/core/storage"
)

// DefaultPatternCacheSize bounds the number of parsed patterns kept per planner.
const DefaultPatternCacheSize = 256

// Request is one aggregate read.
type Request struct {
	// GroupKey filters to one group; empty selects every group.
	GroupKey string

	// Granularity names the bucket table to read ("minutes", "sec", ...).
	Granularity string

	// Within is empty (all time), a single wildcard pattern, or a
	// [start, end) pair of bounds.
	Within []string

	// At selects only the bucket containing this instant. Optional.
	At string
}

// Plan is a validated request resolved against one aggregation.
type Plan struct {
	Granularity aggregation.Granularity
	Level       int
	GroupKey    string
	Range       Range

	pattern *Pattern
}

// Matches reports whether a bucket of the plan's granularity is selected.
func (p *Plan) Matches(key aggregation.BucketKey) bool {
	if key.Granularity != p.Granularity {
		return false
	}
	if p.GroupKey != "" && key.GroupKey != p.GroupKey {
		return false
	}
	if !p.Range.Contains(key.BucketStart) {
		return false
	}
	return p.pattern == nil || p.pattern.Matches(key.BucketStart)
}

// Scan returns the store request covering the plan.
func (p *Plan) Scan(aggName string) storage.ScanRequest {
	return storage.ScanRequest{
		Aggregation: aggName,
		Granularity: p.Granularity,
		GroupKey:    p.GroupKey,
		Start:       p.Range.Start,
		End:         p.Range.End,
	}
}

// Planner validates requests for one aggregation.
type Planner struct {
	granularities []aggregation.Granularity
	loc           *time.Location
	patterns      *lru.Cache[string, *Pattern]
}

// NewPlanner returns a planner for an aggregation materialized at
// granularities, aligned in loc.
func NewPlanner(granularities []aggregation.Granularity, loc *time.Location, cacheSize int) (*Planner, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultPatternCacheSize
	}
	cache, err := lru.New[string, *Pattern](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create pattern cache: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Planner{
		granularities: append([]aggregation.Granularity(nil), granularities...),
		loc:           loc,
		patterns:      cache,
	}, nil
}

// Plan validates req. Every failure wraps aggregation.ErrInvalidQuery.
func (p *Planner) Plan(req Request) (*Plan, error) {
	g, err := aggregation.ParseGranularity(req.Granularity)
	if err != nil {
		return nil, invalidQueryf("%v", err)
	}
	level := -1
	for i, cg := range p.granularities {
		if cg == g {
			level = i
			break
		}
	}
	if level < 0 {
		return nil, invalidQueryf("granularity %s is not materialized", g)
	}

	plan := &Plan{Granularity: g, Level: level, GroupKey: req.GroupKey, Range: AllTime}

	switch len(req.Within) {
	case 0:
	case 1:
		pat, err := p.pattern(req.Within[0])
		if err != nil {
			return nil, err
		}
		plan.pattern = pat
		plan.Range = pat.Range()
	case 2:
		r, err := ParseRange(req.Within[0], req.Within[1])
		if err != nil {
			return nil, err
		}
		plan.Range = r
	default:
		return nil, invalidQueryf("within takes a pattern or two bounds, got %d values", len(req.Within))
	}

	if at := strings.TrimSpace(req.At); at != "" {
		ts, err := ParseBound(at)
		if err != nil {
			return nil, err
		}
		start := aggregation.BucketStart(ts, g, p.loc)
		plan.Range = plan.Range.Intersect(Range{Start: start, End: aggregation.NextBucketStart(start, g, p.loc)})
	}
	return plan, nil
}

func (p *Planner) pattern(s string) (*Pattern, error) {
	s = strings.TrimSpace(s)
	if pat, ok := p.patterns.Get(s); ok {
		return pat, nil
	}
	pat, err := ParsePattern(s)
	if err != nil {
		return nil, err
	}
	p.patterns.Add(s, pat)
	return pat, nil
}
