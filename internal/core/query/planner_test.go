package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aevon-lab/rollupd/internal/core/aggregation"
	"github.com/aevon-lab/rollupd/internal/core/storage"
)

func newTestPlanner(t *testing.T) *Planner {
	t.Helper()
	p, err := NewPlanner(aggregation.Ladder, time.UTC, 4)
	require.NoError(t, err)
	return p
}

func TestPlanner_Granularity(t *testing.T) {
	p := newTestPlanner(t)

	for _, name := range []string{"sec", "SECONDS", "Minute", "min", "hours", "day", "months", "year"} {
		plan, err := p.Plan(Request{Granularity: name})
		require.NoError(t, err, name)
		require.Equal(t, AllTime, plan.Range)
	}

	plan, err := p.Plan(Request{Granularity: "minutes"})
	require.NoError(t, err)
	require.Equal(t, aggregation.Minute, plan.Granularity)
	require.Equal(t, 1, plan.Level)

	_, err = p.Plan(Request{Granularity: "weeks"})
	require.ErrorIs(t, err, aggregation.ErrInvalidQuery)

	narrow, err := NewPlanner([]aggregation.Granularity{aggregation.Second, aggregation.Minute}, nil, 0)
	require.NoError(t, err)
	_, err = narrow.Plan(Request{Granularity: "days"})
	require.ErrorIs(t, err, aggregation.ErrInvalidQuery)
}

func TestPlanner_Within(t *testing.T) {
	p := newTestPlanner(t)

	plan, err := p.Plan(Request{Granularity: "seconds", Within: []string{"2017-06-01 04:05:50", "2017-06-01 04:05:52"}})
	require.NoError(t, err)
	require.Equal(t, Range{Start: 1496289950000, End: 1496289952000}, plan.Range)

	plan, err = p.Plan(Request{Granularity: "days", Within: []string{"2017-06-** **:**:**"}})
	require.NoError(t, err)
	require.Equal(t, ms(t, "2017-06-01 00:00:00"), plan.Range.Start)
	require.Equal(t, ms(t, "2017-07-01 00:00:00"), plan.Range.End)

	_, err = p.Plan(Request{Granularity: "days", Within: []string{"a", "b", "c"}})
	require.ErrorIs(t, err, aggregation.ErrInvalidQuery)

	_, err = p.Plan(Request{Granularity: "days", Within: []string{"2017-06-**"}})
	require.ErrorIs(t, err, aggregation.ErrInvalidQuery)
}

func TestPlanner_PatternCache(t *testing.T) {
	p := newTestPlanner(t)

	_, err := p.Plan(Request{Granularity: "days", Within: []string{"2017-06-** **:**:**"}})
	require.NoError(t, err)
	_, err = p.Plan(Request{Granularity: "months", Within: []string{" 2017-06-** **:**:** "}})
	require.NoError(t, err)
	require.Equal(t, 1, p.patterns.Len())

	_, err = p.Plan(Request{Granularity: "days", Within: []string{"2017-13-** **:**:**"}})
	require.Error(t, err)
	require.Equal(t, 1, p.patterns.Len())
}

func TestPlanner_PointInTime(t *testing.T) {
	p := newTestPlanner(t)

	plan, err := p.Plan(Request{Granularity: "minutes", At: "2017-06-01 04:05:50"})
	require.NoError(t, err)
	require.Equal(t, Range{Start: ms(t, "2017-06-01 04:05:00"), End: ms(t, "2017-06-01 04:06:00")}, plan.Range)

	plan, err = p.Plan(Request{Granularity: "months", At: "1496289950000"})
	require.NoError(t, err)
	require.Equal(t, Range{Start: ms(t, "2017-06-01 00:00:00"), End: ms(t, "2017-07-01 00:00:00")}, plan.Range)

	// At outside the range selects nothing.
	plan, err = p.Plan(Request{
		Granularity: "minutes",
		Within:      []string{"2017-06-01 05:00:00", "2017-06-01 06:00:00"},
		At:          "2017-06-01 04:05:50",
	})
	require.NoError(t, err)
	require.True(t, plan.Range.Empty())

	_, err = p.Plan(Request{Granularity: "minutes", At: "nonsense"})
	require.ErrorIs(t, err, aggregation.ErrInvalidQuery)
}

func TestPlan_Scan(t *testing.T) {
	p := newTestPlanner(t)
	plan, err := p.Plan(Request{GroupKey: "IBM", Granularity: "sec", Within: []string{"1000", "5000"}})
	require.NoError(t, err)
	require.Equal(t, storage.ScanRequest{
		Aggregation: "stock",
		Granularity: aggregation.Second,
		GroupKey:    "IBM",
		Start:       1000,
		End:         5000,
	}, plan.Scan("stock"))
}
