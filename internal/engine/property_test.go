package engine

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/aevon-lab/rollupd/internal/core/aggregation"
	"github.com/aevon-lab/rollupd/internal/core/query"
	"github.com/aevon-lab/rollupd/internal/core/storage/memory"
)

// TestEngine_OutOfOrderTolerance checks that any arrival order of events
// spread over no more seconds than the buffer holds yields the same sums and
// counts at every granularity as the raw events.
func TestEngine_OutOfOrderTolerance(t *testing.T) {
	def, err := aggregation.ParseDefinition([]byte(stockDefinition))
	if err != nil {
		t.Fatal(err)
	}
	cd, err := aggregation.Compile(*def)
	if err != nil {
		t.Fatal(err)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("sums and counts are order independent", prop.ForAll(
		func(seconds []int, flush bool) bool {
			ctx := context.Background()
			e, err := New(cd, memory.New(), DefaultOptions())
			if err != nil {
				return false
			}

			total := 0.0
			for i, s := range seconds {
				price := float64(i + 1)
				total += price
				if err := e.Ingest(ctx, trade("IBM", price, 1, int64(1496289950000+s*1000))); err != nil {
					return false
				}
			}
			if flush && e.Flush(ctx) != nil {
				return false
			}

			for _, g := range []string{"seconds", "minutes", "years"} {
				rows, err := e.Query(ctx, query.Request{GroupKey: "IBM", Granularity: g})
				if err != nil {
					return false
				}
				sum, count := 0.0, 0.0
				for _, r := range rows {
					sum += r.Values["totalPrice"].(float64)
					count += r.Values["totalPrice"].(float64) / r.Values["avgPrice"].(float64)
				}
				if sum != total {
					return false
				}
				if len(seconds) > 0 && int(count+0.5) != len(seconds) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 2)),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
