// Package cascade propagates a completed finest-granularity bucket into
// every coarser configured granularity.
package cascade

import (
	"context"
	"fmt"
	"time"

	"github.com/aevon-lab/rollupd/internal/core/aggregation"
	"github.com/aevon-lab/rollupd/internal/core/storage"
)

// Cascader merges flushed buckets into the store level by level.
type Cascader struct {
	store         storage.BucketStore
	aggregation   string
	granularities []aggregation.Granularity
	loc           *time.Location
}

// New returns a cascader for one aggregation. granularities must be ordered
// finest first; loc is the reference zone for calendar alignment.
func New(store storage.BucketStore, aggName string, granularities []aggregation.Granularity, loc *time.Location) *Cascader {
	if loc == nil {
		loc = time.UTC
	}
	return &Cascader{
		store:         store,
		aggregation:   aggName,
		granularities: append([]aggregation.Granularity(nil), granularities...),
		loc:           loc,
	}
}

// Levels returns the number of configured granularities.
func (c *Cascader) Levels() int { return len(c.granularities) }

// Cascade upserts acc into the bucket containing finestStart at every level
// from fromLevel to the coarsest. It returns the number of levels applied so
// far: Levels() on success, or the index of the failing level with the error.
// Resuming with that index never merges a level twice.
func (c *Cascader) Cascade(ctx context.Context, groupKey string, finestStart int64, acc *aggregation.Accumulator, fromLevel int) (int, error) {
	for level := fromLevel; level < len(c.granularities); level++ {
		g := c.granularities[level]
		key := aggregation.BucketKey{
			Aggregation: c.aggregation,
			GroupKey:    groupKey,
			Granularity: g,
			BucketStart: aggregation.BucketStart(finestStart, g, c.loc),
		}
		if err := c.store.Upsert(ctx, key, acc); err != nil {
			return level, fmt.Errorf("cascade %s level %s: %w", c.aggregation, g, err)
		}
	}
	return len(c.granularities), nil
}
