package engine

import (
	"context"
	"log/slog"
	"sync"

	v1 "github.com/aevon-lab/rollupd/internal/api/v1"
	"github.com/aevon-lab/rollupd/internal/core/partition"
)

type laneBatch struct {
	indexes []int
}

// IngestBatch admits events concurrently across lanes. Events of one lane,
// and therefore of one group key, are admitted in slice order. The returned
// slice holds the Ingest error of each event by index.
func (e *Engine) IngestBatch(ctx context.Context, events []*v1.Event) []error {
	errs := make([]error, len(events))
	if len(events) == 0 {
		return errs
	}

	groups := make(map[int]*laneBatch)
	for i, evt := range events {
		id := partition.For(e.def.GroupKey(evt.Data), len(e.lanes))
		b, ok := groups[id]
		if !ok {
			b = &laneBatch{}
			groups[id] = b
		}
		b.indexes = append(b.indexes, i)
	}

	workerCount := minInt(e.opts.BatchWorkers, len(groups))
	jobs := make(chan *laneBatch, len(groups))

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for b := range jobs {
				for _, i := range b.indexes {
					errs[i] = e.Ingest(ctx, events[i])
				}
			}
		}()
	}

	for _, b := range groups {
		jobs <- b
	}
	close(jobs)
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	slog.Debug("[Engine] Batch ingested",
		"aggregation", e.def.Name,
		"events", len(events),
		"lanes", len(groups),
		"workers", workerCount,
		"failed", failed,
	)
	return errs
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
