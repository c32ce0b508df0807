package cascade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aevon-lab/rollupd/internal/core/aggregation"
	storagemocks "github.com/aevon-lab/rollupd/internal/mocks/storage"
)

var ladder = []aggregation.Granularity{
	aggregation.Second,
	aggregation.Minute,
	aggregation.Hour,
	aggregation.Day,
}

// 2017-06-01 04:05:50 UTC
const finest = int64(1496289950000)

func keyAt(g aggregation.Granularity, start int64) aggregation.BucketKey {
	return aggregation.BucketKey{Aggregation: "stock", GroupKey: "IBM", Granularity: g, BucketStart: start}
}

func TestCascade_UpsertsEveryLevel(t *testing.T) {
	store := storagemocks.NewBucketStore(t)
	acc := aggregation.NewAccumulator()
	acc.Add("price", 50)

	startOf := func(layout string) int64 {
		ts, err := time.Parse(time.DateTime, layout)
		require.NoError(t, err)
		return ts.UnixMilli()
	}

	store.EXPECT().Upsert(mock.Anything, keyAt(aggregation.Second, finest), acc).Return(nil).Once()
	store.EXPECT().Upsert(mock.Anything, keyAt(aggregation.Minute, startOf("2017-06-01 04:05:00")), acc).Return(nil).Once()
	store.EXPECT().Upsert(mock.Anything, keyAt(aggregation.Hour, startOf("2017-06-01 04:00:00")), acc).Return(nil).Once()
	store.EXPECT().Upsert(mock.Anything, keyAt(aggregation.Day, startOf("2017-06-01 00:00:00")), acc).Return(nil).Once()

	c := New(store, "stock", ladder, nil)
	applied, err := c.Cascade(context.Background(), "IBM", finest, acc, 0)
	require.NoError(t, err)
	require.Equal(t, 4, applied)
	require.Equal(t, 4, c.Levels())
}

func TestCascade_FailureReportsLevelAndResumes(t *testing.T) {
	store := storagemocks.NewBucketStore(t)
	acc := aggregation.NewAccumulator()
	acc.Add("price", 50)

	down := errors.Join(aggregation.ErrStorageUnavailable, errors.New("connection refused"))
	store.EXPECT().Upsert(mock.Anything, mock.MatchedBy(func(k aggregation.BucketKey) bool {
		return k.Granularity == aggregation.Second || k.Granularity == aggregation.Minute
	}), acc).Return(nil).Once()
	store.EXPECT().Upsert(mock.Anything, mock.MatchedBy(func(k aggregation.BucketKey) bool {
		return k.Granularity == aggregation.Hour
	}), acc).Return(down).Once()

	c := New(store, "stock", ladder, time.UTC)
	applied, err := c.Cascade(context.Background(), "IBM", finest, acc, 0)
	require.ErrorIs(t, err, aggregation.ErrStorageUnavailable)
	require.Equal(t, 2, applied)

	// Only the remaining levels are merged on retry.
	store.EXPECT().Upsert(mock.Anything, mock.MatchedBy(func(k aggregation.BucketKey) bool {
		return k.Granularity == aggregation.Hour || k.Granularity == aggregation.Day
	}), acc).Return(nil).Times(2)

	applied, err = c.Cascade(context.Background(), "IBM", finest, acc, applied)
	require.NoError(t, err)
	require.Equal(t, 4, applied)
}

func TestCascade_UsesReferenceZone(t *testing.T) {
	store := storagemocks.NewBucketStore(t)
	acc := aggregation.NewAccumulator()
	acc.Add("price", 1)

	loc := time.FixedZone("+05:30", 5*3600+1800)
	dayStart := time.Date(2017, 6, 1, 0, 0, 0, 0, loc).UnixMilli()

	store.EXPECT().Upsert(mock.Anything, keyAt(aggregation.Day, dayStart), acc).Return(nil).Once()

	c := New(store, "stock", []aggregation.Granularity{aggregation.Day}, loc)
	applied, err := c.Cascade(context.Background(), "IBM", finest, acc, 0)
	require.NoError(t, err)
	require.Equal(t, 1, applied)
}
