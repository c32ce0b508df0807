package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aevon-lab/rollupd/internal/core/aggregation"
)

func TestRange_BoundaryIsHalfOpen(t *testing.T) {
	r := Range{Start: 1000, End: 2000}
	require.True(t, r.Contains(1000))
	require.True(t, r.Contains(1999))
	require.False(t, r.Contains(2000))
	require.False(t, r.Contains(999))
}

func TestRange_Intersect(t *testing.T) {
	r := Range{Start: 1000, End: 5000}
	require.Equal(t, Range{Start: 2000, End: 5000}, r.Intersect(Range{Start: 2000, End: 9000}))
	require.Equal(t, r, r.Intersect(AllTime))
	require.True(t, r.Intersect(Range{Start: 6000, End: 7000}).Empty())
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("2017-06-01 04:05:50", "2017-06-01 04:05:52")
	require.NoError(t, err)
	require.Equal(t, int64(1496289950000), r.Start)
	require.Equal(t, int64(1496289952000), r.End)

	r, err = ParseRange("1496289950000", "1496289952000")
	require.NoError(t, err)
	require.Equal(t, Range{Start: 1496289950000, End: 1496289952000}, r)

	r, err = ParseRange("2017-06-01 09:35:50 +05:30", "2017-06-01 04:05:52")
	require.NoError(t, err)
	require.Equal(t, int64(1496289950000), r.Start)

	_, err = ParseRange("2017-06-01 04:05:52", "2017-06-01 04:05:50")
	require.ErrorIs(t, err, aggregation.ErrInvalidQuery)

	_, err = ParseRange("not a time", "2017-06-01 04:05:50")
	require.ErrorIs(t, err, aggregation.ErrInvalidQuery)
}
