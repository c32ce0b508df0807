package storage

import (
	"context"
	"errors"
	"sort"

	"github.com/aevon-lab/rollupd/internal/core/aggregation"
)

// ErrConflict is returned by a single write attempt that lost a concurrent
// update race. Stores retry it internally; callers only ever see it wrapped
// in aggregation.ErrStorageUnavailable once retries are exhausted.
var ErrConflict = errors.New("concurrent bucket update")

// Row is one materialized bucket.
type Row struct {
	Key aggregation.BucketKey
	Acc *aggregation.Accumulator
}

// ScanRequest selects the rows of one aggregation at one granularity whose
// BucketStart falls in [Start, End). An empty GroupKey selects every group.
type ScanRequest struct {
	Aggregation string
	Granularity aggregation.Granularity
	GroupKey    string
	Start       int64
	End         int64
}

// Contains reports whether key is selected by r.
func (r ScanRequest) Contains(key aggregation.BucketKey) bool {
	return key.Aggregation == r.Aggregation &&
		key.Granularity == r.Granularity &&
		(r.GroupKey == "" || key.GroupKey == r.GroupKey) &&
		key.BucketStart >= r.Start &&
		key.BucketStart < r.End
}

// BucketStore is the multi-granularity bucket store: one logical table per
// granularity keyed by (aggregation, group key, bucket start).
type BucketStore interface {
	// Upsert merges acc into the row at key atomically, creating it on first merge.
	Upsert(ctx context.Context, key aggregation.BucketKey, acc *aggregation.Accumulator) error

	// Get returns the row at key, or (nil, nil) if it does not exist.
	Get(ctx context.Context, key aggregation.BucketKey) (*aggregation.Accumulator, error)

	// RangeScan returns the selected rows ordered by BucketStart ascending,
	// then GroupKey ascending.
	RangeScan(ctx context.Context, req ScanRequest) ([]Row, error)

	Close() error
}

// Purger is implemented by stores that support retention. Purge deletes the
// rows of one aggregation and granularity whose BucketStart is before olderThan.
type Purger interface {
	Purge(ctx context.Context, aggregation string, g aggregation.Granularity, olderThan int64) (int64, error)
}

// Pinger is implemented by stores that can report backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SortRows orders rows by BucketStart ascending, then GroupKey ascending.
func SortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Key.BucketStart != rows[j].Key.BucketStart {
			return rows[i].Key.BucketStart < rows[j].Key.BucketStart
		}
		return rows[i].Key.GroupKey < rows[j].Key.GroupKey
	})
}
