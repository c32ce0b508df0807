package buffer

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/aevon-lab/rollupd/internal/core/aggregation"
)

// add returns a merge function that counts one event of value v.
func add(v float64) func(*aggregation.Accumulator) {
	return func(acc *aggregation.Accumulator) { acc.Add("v", v) }
}

func sumOf(s Slot) float64 {
	c, _ := s.Acc.Component("v")
	return c.Sum
}

func starts(slots []Slot) []int64 {
	out := make([]int64, len(slots))
	for i, s := range slots {
		out[i] = s.Start
	}
	return out
}

func TestBuffer_MergeAndCreate(t *testing.T) {
	b := New(3, false)

	released, outcome := b.Admit(1000, add(1))
	require.Empty(t, released)
	require.Equal(t, Created, outcome)

	released, outcome = b.Admit(1000, add(2))
	require.Empty(t, released)
	require.Equal(t, Merged, outcome)

	_, outcome = b.Admit(3000, add(3))
	require.Equal(t, Created, outcome)
	_, outcome = b.Admit(2000, add(4))
	require.Equal(t, Created, outcome)

	require.Equal(t, 3, b.Len())
	require.Equal(t, []int64{1000, 2000, 3000}, starts(b.Snapshot()))
}

func TestBuffer_OlderThanMinimumIsInsertedWhenNotFull(t *testing.T) {
	b := New(3, false)
	b.Admit(2000, add(2))

	released, outcome := b.Admit(1000, add(1))
	require.Empty(t, released)
	require.Equal(t, Created, outcome)
	require.Equal(t, []int64{1000, 2000}, starts(b.Snapshot()))
}

func TestBuffer_EvictsMinimumWhenFull(t *testing.T) {
	b := New(3, false)
	b.Admit(1000, add(1))
	b.Admit(2000, add(2))
	b.Admit(3000, add(3))

	released, outcome := b.Admit(4000, add(4))
	require.Equal(t, Created, outcome)
	require.Equal(t, []int64{1000}, starts(released))
	require.Equal(t, 1.0, sumOf(released[0]))
	require.Equal(t, []int64{2000, 3000, 4000}, starts(b.Snapshot()))
}

func TestBuffer_GapInsideWindowEvictsMinimum(t *testing.T) {
	b := New(3, false)
	b.Admit(1000, add(1))
	b.Admit(2000, add(2))
	b.Admit(5000, add(5))

	released, outcome := b.Admit(3000, add(3))
	require.Equal(t, Created, outcome)
	require.Equal(t, []int64{1000}, starts(released))
	require.Equal(t, []int64{2000, 3000, 5000}, starts(b.Snapshot()))
}

func TestBuffer_OlderThanWindowIsRebucketed(t *testing.T) {
	b := New(2, false)
	b.Admit(2000, add(2))
	b.Admit(3000, add(3))

	released, outcome := b.Admit(1000, add(10))
	require.Empty(t, released)
	require.Equal(t, Rebucketed, outcome)

	snap := b.Snapshot()
	require.Equal(t, []int64{2000, 3000}, starts(snap))
	require.Equal(t, 12.0, sumOf(snap[0]))
}

func TestBuffer_OlderThanWindowIsDroppedUnderDropPolicy(t *testing.T) {
	b := New(2, true)
	b.Admit(2000, add(2))
	b.Admit(3000, add(3))

	released, outcome := b.Admit(1000, add(10))
	require.Empty(t, released)
	require.Equal(t, Dropped, outcome)
	require.Equal(t, 2.0, sumOf(b.Snapshot()[0]))
}

func TestBuffer_OlderThanFlushedIsLateEvenWhenNotFull(t *testing.T) {
	b := New(3, false)
	b.Admit(1000, add(1))
	b.Admit(2000, add(2))
	drained := b.Drain()
	require.Equal(t, []int64{1000, 2000}, starts(drained))

	b.Admit(5000, add(5))

	released, outcome := b.Admit(1500, add(7))
	require.Empty(t, released)
	require.Equal(t, Rebucketed, outcome)
	require.Equal(t, 12.0, sumOf(b.Snapshot()[0]))
}

func TestBuffer_LateAfterDrainWithNothingRetainedIsDirect(t *testing.T) {
	b := New(3, false)
	b.Admit(2000, add(2))
	b.Drain()

	released, outcome := b.Admit(1000, add(1))
	require.Equal(t, Direct, outcome)
	require.Equal(t, []int64{1000}, starts(released))
	require.Equal(t, 0, b.Len())
}

func TestBuffer_PassThrough(t *testing.T) {
	b := New(0, false)
	require.Equal(t, 1, b.Capacity())

	_, outcome := b.Admit(50_000, add(50))
	require.Equal(t, Created, outcome)
	_, outcome = b.Admit(50_000, add(70))
	require.Equal(t, Merged, outcome)

	released, outcome := b.Admit(52_000, add(60))
	require.Equal(t, Created, outcome)
	require.Equal(t, []int64{50_000}, starts(released))
	require.Equal(t, 120.0, sumOf(released[0]))

	// A late event is emitted on its own instead of joining the current slot.
	released, outcome = b.Admit(50_000, add(50))
	require.Equal(t, Direct, outcome)
	require.Equal(t, []int64{50_000}, starts(released))
	require.Equal(t, 50.0, sumOf(released[0]))
	require.Equal(t, []int64{52_000}, starts(b.Snapshot()))
}

func TestBuffer_PassThroughDropPolicy(t *testing.T) {
	b := New(0, true)
	b.Admit(52_000, add(1))

	released, outcome := b.Admit(50_000, add(2))
	require.Empty(t, released)
	require.Equal(t, Dropped, outcome)
}

func TestBuffer_SnapshotIsACopy(t *testing.T) {
	b := New(2, false)
	b.Admit(1000, add(1))

	snap := b.Snapshot()
	snap[0].Acc.Add("v", 100)

	require.Equal(t, 1.0, sumOf(b.Snapshot()[0]))
}

func TestOutcome_String(t *testing.T) {
	require.Equal(t, "rebucketed", Rebucketed.String())
	require.Equal(t, "unknown", Outcome(99).String())
}

// TestBuffer_Properties checks, for arbitrary arrival orders, that the buffer
// never exceeds its capacity, releases slots strictly ascending, and (under
// the default policy) loses no event.
func TestBuffer_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("bounded, ordered and lossless", prop.ForAll(
		func(size int, seconds []int) bool {
			b := New(size, false)
			var released []Slot
			total := 0.0
			for _, s := range seconds {
				out, outcome := b.Admit(int64(s)*1000, add(1))
				if outcome == Direct || outcome == Dropped {
					return false
				}
				released = append(released, out...)
				total++
				if b.Len() > b.Capacity() {
					return false
				}
			}
			released = append(released, b.Drain()...)

			got := 0.0
			for i, s := range released {
				if i > 0 && s.Start <= released[i-1].Start {
					return false
				}
				got += sumOf(s)
			}
			return got == total
		},
		gen.IntRange(1, 6),
		gen.SliceOf(gen.IntRange(0, 30)),
	))

	properties.Property("drop policy never releases an older bucket", prop.ForAll(
		func(size int, seconds []int) bool {
			b := New(size, true)
			last := int64(-1)
			check := func(slots []Slot) bool {
				for _, s := range slots {
					if s.Start <= last {
						return false
					}
					last = s.Start
				}
				return true
			}
			for _, s := range seconds {
				out, _ := b.Admit(int64(s)*1000, add(1))
				if !check(out) {
					return false
				}
			}
			return check(b.Drain())
		},
		gen.IntRange(0, 6),
		gen.SliceOf(gen.IntRange(0, 30)),
	))

	properties.TestingRun(t)
}
