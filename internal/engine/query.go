package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aevon-lab/rollupd/internal/core/aggregation"
	"github.com/aevon-lab/rollupd/internal/core/query"
	"github.com/aevon-lab/rollupd/internal/core/storage"
	"github.com/aevon-lab/rollupd/internal/metrics"
)

// optimisticReads bounds the lock-free scans attempted before a query holds
// the key locks across the store scan.
const optimisticReads = 3

// Query answers a range or point-in-time read. Persisted rows are composed
// with the in-flight state of the keys read, so data admitted but not yet
// cascaded is visible. In-flight state is snapshotted per key and the store
// is scanned without holding any lock; the scan is retried when a cascade of
// a snapshotted key started meanwhile, since its rows may then be counted
// twice.
func (e *Engine) Query(ctx context.Context, req query.Request) ([]query.Result, error) {
	plan, err := e.planner.Plan(req)
	if err != nil {
		return nil, fmt.Errorf("engine %s: %w", e.def.Name, err)
	}
	started := time.Now()
	defer func() {
		metrics.QueryLatency.WithLabelValues(e.def.Name, plan.Granularity.String()).Observe(time.Since(started).Seconds())
	}()

	if plan.Range.Empty() {
		return []query.Result{}, nil
	}

	for attempt := 0; attempt < optimisticReads; attempt++ {
		entries := e.entriesFor(plan.GroupKey)
		inflight, marks := e.snapshot(entries, plan)
		persisted, err := e.scan(ctx, plan)
		if err != nil {
			return nil, err
		}
		if unchanged(entries, marks) {
			return e.results(plan.Compose(persisted, inflight)), nil
		}
		slog.Debug("[Engine] Query raced a cascade, rescanning",
			"aggregation", e.def.Name,
			"granularity", plan.Granularity.String(),
			"attempt", attempt+1,
		)
	}

	// Keys under constant write load: pin them for one consistent scan.
	// Writers take a single key lock at a time, so read-locking in order
	// cannot deadlock.
	entries := e.entriesFor(plan.GroupKey)
	for _, ent := range entries {
		ent.state.mu.RLock()
	}
	defer func() {
		for _, ent := range entries {
			ent.state.mu.RUnlock()
		}
	}()
	var inflight []storage.Row
	for _, ent := range entries {
		inflight = e.appendInflight(inflight, ent, plan)
	}
	persisted, err := e.scan(ctx, plan)
	if err != nil {
		return nil, err
	}
	return e.results(plan.Compose(persisted, inflight)), nil
}

func (e *Engine) entriesFor(groupKey string) []keyEntry {
	if groupKey == "" {
		return e.allEntries()
	}
	ks, ok := e.lookup(groupKey)
	if !ok {
		return nil
	}
	return []keyEntry{{groupKey: groupKey, state: ks}}
}

// snapshot copies the in-flight rows of entries and the cascade counter of
// each key, one key lock at a time.
func (e *Engine) snapshot(entries []keyEntry, plan *query.Plan) ([]storage.Row, []uint64) {
	var rows []storage.Row
	marks := make([]uint64, len(entries))
	for i, ent := range entries {
		ent.state.mu.RLock()
		rows = e.appendInflight(rows, ent, plan)
		marks[i] = ent.state.writes.Load()
		ent.state.mu.RUnlock()
	}
	return rows, marks
}

func unchanged(entries []keyEntry, marks []uint64) bool {
	for i, ent := range entries {
		if ent.state.writes.Load() != marks[i] {
			return false
		}
	}
	return true
}

func (e *Engine) scan(ctx context.Context, plan *query.Plan) ([]storage.Row, error) {
	rows, err := e.store.RangeScan(ctx, plan.Scan(e.def.Name))
	if err != nil {
		return nil, fmt.Errorf("engine %s: query %s: %w", e.def.Name, plan.Granularity, err)
	}
	return rows, nil
}

func (e *Engine) results(rows []storage.Row) []query.Result {
	results := make([]query.Result, len(rows))
	for i, r := range rows {
		results[i] = query.Result{
			GroupKey:    r.Key.GroupKey,
			Granularity: r.Key.Granularity,
			BucketStart: r.Key.BucketStart,
			Values:      e.def.Project(r.Acc),
		}
	}
	return results
}

// appendInflight adds the key state not yet persisted at the plan's level:
// queued cascades that have not reached it, then buffered slots, each aligned
// to the plan's granularity. Caller holds the key lock for reading.
func (e *Engine) appendInflight(rows []storage.Row, ent keyEntry, plan *query.Plan) []storage.Row {
	ks := ent.state
	for _, p := range ks.pending {
		if p.nextLevel > plan.Level {
			continue
		}
		rows = append(rows, e.inflightRow(ent.groupKey, p.slot.Start, p.slot.Acc.Clone(), plan.Granularity))
	}
	for _, s := range ks.buf.Snapshot() {
		rows = append(rows, e.inflightRow(ent.groupKey, s.Start, s.Acc, plan.Granularity))
	}
	return rows
}

func (e *Engine) inflightRow(groupKey string, finestStart int64, acc *aggregation.Accumulator, g aggregation.Granularity) storage.Row {
	return storage.Row{
		Key: aggregation.BucketKey{
			Aggregation: e.def.Name,
			GroupKey:    groupKey,
			Granularity: g,
			BucketStart: aggregation.BucketStart(finestStart, g, e.opts.Location),
		},
		Acc: acc,
	}
}
