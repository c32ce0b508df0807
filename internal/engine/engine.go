// Package engine runs one aggregation definition: it admits events into the
// out-of-order buffers, cascades flushed buckets into every granularity, and
// answers queries over persisted and in-flight state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	v1 "github.com/aevon-lab/rollupd/internal/api/v1"
	"github.com/aevon-lab/rollupd/internal/core/aggregation"
	"github.com/aevon-lab/rollupd/internal/core/buffer"
	"github.com/aevon-lab/rollupd/internal/core/cascade"
	"github.com/aevon-lab/rollupd/internal/core/partition"
	"github.com/aevon-lab/rollupd/internal/core/query"
	"github.com/aevon-lab/rollupd/internal/core/storage"
	"github.com/aevon-lab/rollupd/internal/metrics"
)

const (
	defaultBufferSize   = 3
	defaultBatchWorkers = 8
)

// Hooks are optional observability callbacks. They run under the lock of the
// affected group key and must not call back into the engine.
type Hooks struct {
	// OnDrop is called for every event discarded by the drop policy.
	OnDrop func(aggName, groupKey string, bucketStart int64)
}

// Options configures an engine.
type Options struct {
	// BufferSize is the number of finest buckets retained per group key.
	// Zero disables reordering: late events are cascaded into their own bucket.
	BufferSize int

	// DropEventsOlderThanBuffer discards events older than every retained slot
	// instead of merging them into the oldest one.
	DropEventsOlderThanBuffer bool

	// Lanes is the number of partitions of the group-key table. Each lane
	// guards only its key map; every key has its own lock.
	Lanes int

	// Location is the reference zone for calendar alignment. Nil means UTC.
	Location *time.Location

	// BatchWorkers bounds the goroutines used by IngestBatch.
	BatchWorkers int

	// PatternCacheSize bounds the planner's parsed pattern cache.
	PatternCacheSize int

	Hooks Hooks
}

// DefaultOptions returns the defaults: a three-slot buffer, lossy
// re-bucketing of late events, UTC alignment.
func DefaultOptions() Options {
	return Options{
		BufferSize:   defaultBufferSize,
		Lanes:        partition.DefaultLanes,
		Location:     time.UTC,
		BatchWorkers: defaultBatchWorkers,
	}
}

func (o Options) normalized() Options {
	n := o
	if n.BufferSize < 0 {
		n.BufferSize = 0
	}
	if n.Lanes <= 0 {
		n.Lanes = partition.DefaultLanes
	}
	if n.Location == nil {
		n.Location = time.UTC
	}
	if n.BatchWorkers <= 0 {
		n.BatchWorkers = defaultBatchWorkers
	}
	return n
}

// pendingFlush is a released finest bucket whose cascade has not reached the
// coarsest level yet. nextLevel is the first level still to be merged.
type pendingFlush struct {
	slot      buffer.Slot
	nextLevel int
}

// keyState is the in-flight state of one group key. Admission, flush and
// cascade of the key run under the write lock. writes is bumped before every
// cascade so readers can tell whether the store moved under their scan.
type keyState struct {
	mu      sync.RWMutex
	buf     *buffer.Buffer
	pending []pendingFlush
	closed  bool
	writes  atomic.Uint64
}

type keyEntry struct {
	groupKey string
	state    *keyState
}

// lane maps the group keys hashed to it onto their state. The lock guards the
// map only and is never held across store I/O.
type lane struct {
	mu     sync.RWMutex
	keys   map[string]*keyState
	closed bool
}

// entries returns the lane's keys in sorted order.
func (l *lane) entries() []keyEntry {
	l.mu.RLock()
	out := make([]keyEntry, 0, len(l.keys))
	for k, ks := range l.keys {
		out = append(out, keyEntry{groupKey: k, state: ks})
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].groupKey < out[j].groupKey })
	return out
}

// Engine is the per-definition aggregation instance. It is safe for
// concurrent use.
type Engine struct {
	def      *aggregation.CompiledDefinition
	store    storage.BucketStore
	cascader *cascade.Cascader
	planner  *query.Planner
	opts     Options
	lanes    []*lane
	nowFn    func() time.Time
}

// New returns an engine for def persisting into store.
func New(def *aggregation.CompiledDefinition, store storage.BucketStore, opts Options) (*Engine, error) {
	if def == nil {
		return nil, errors.New("engine: definition is required")
	}
	if store == nil {
		return nil, errors.New("engine: bucket store is required")
	}
	opts = opts.normalized()

	planner, err := query.NewPlanner(def.Granularities, opts.Location, opts.PatternCacheSize)
	if err != nil {
		return nil, fmt.Errorf("engine %s: %w", def.Name, err)
	}

	e := &Engine{
		def:      def,
		store:    store,
		cascader: cascade.New(store, def.Name, def.Granularities, opts.Location),
		planner:  planner,
		opts:     opts,
		lanes:    make([]*lane, opts.Lanes),
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
	for i := range e.lanes {
		e.lanes[i] = &lane{keys: make(map[string]*keyState)}
	}
	return e, nil
}

// Name returns the aggregation name.
func (e *Engine) Name() string { return e.def.Name }

// Definition returns the compiled definition the engine runs.
func (e *Engine) Definition() *aggregation.CompiledDefinition { return e.def }

func (e *Engine) laneFor(groupKey string) *lane {
	return e.lanes[partition.For(groupKey, len(e.lanes))]
}

// stateFor returns the state of groupKey, creating it unless the lane is closed.
func (e *Engine) stateFor(groupKey string) (*keyState, error) {
	l := e.laneFor(groupKey)
	l.mu.RLock()
	ks, ok := l.keys[groupKey]
	l.mu.RUnlock()
	if ok {
		return ks, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if ks, ok = l.keys[groupKey]; ok {
		return ks, nil
	}
	if l.closed {
		return nil, fmt.Errorf("engine %s: %w", e.def.Name, aggregation.ErrClosed)
	}
	ks = &keyState{buf: buffer.New(e.opts.BufferSize, e.opts.DropEventsOlderThanBuffer)}
	l.keys[groupKey] = ks
	return ks, nil
}

// lookup returns the state of groupKey without creating it.
func (e *Engine) lookup(groupKey string) (*keyState, bool) {
	l := e.laneFor(groupKey)
	l.mu.RLock()
	defer l.mu.RUnlock()
	ks, ok := l.keys[groupKey]
	return ks, ok
}

// allEntries returns every key of every lane, lanes in index order.
func (e *Engine) allEntries() []keyEntry {
	var out []keyEntry
	for _, l := range e.lanes {
		out = append(out, l.entries()...)
	}
	return out
}

// eventTime resolves the event time: the definition's timestamp field, else
// the envelope timestamp, else the arrival clock.
func (e *Engine) eventTime(evt *v1.Event) (int64, error) {
	if f := e.def.TimestampField; f != "" {
		v, ok := evt.Data[f]
		if !ok {
			return 0, fmt.Errorf("%w: field %q is missing", aggregation.ErrInvalidTimestamp, f)
		}
		return aggregation.ParseTimestamp(v)
	}
	if evt.Timestamp != nil {
		return aggregation.ParseTimestamp(evt.Timestamp)
	}
	if !evt.IngestedAt.IsZero() {
		return evt.IngestedAt.UnixMilli(), nil
	}
	return e.nowFn().UnixMilli(), nil
}

// Ingest admits one event. Invalid events are rejected with
// ErrInvalidTimestamp or ErrInvalidEvent and leave no trace. An
// ErrStorageUnavailable result means the event was admitted but a cascade it
// triggered could not be persisted yet; it is retried on the key's next
// flush opportunity. Keys never wait on each other's cascades.
func (e *Engine) Ingest(ctx context.Context, evt *v1.Event) error {
	ts, err := e.eventTime(evt)
	if err != nil {
		metrics.RejectedEvents.WithLabelValues(e.def.Name, "timestamp").Inc()
		return fmt.Errorf("engine %s: event %s: %w", e.def.Name, evt.ID, err)
	}
	contrib, err := e.def.Contribution(evt.Data)
	if err != nil {
		metrics.RejectedEvents.WithLabelValues(e.def.Name, "data").Inc()
		return fmt.Errorf("engine %s: event %s: %w", e.def.Name, evt.ID, err)
	}

	groupKey := e.def.GroupKey(evt.Data)
	start := aggregation.BucketStart(ts, e.def.Finest(), e.opts.Location)

	ks, err := e.stateFor(groupKey)
	if err != nil {
		return err
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.closed {
		return fmt.Errorf("engine %s: %w", e.def.Name, aggregation.ErrClosed)
	}

	released, outcome := ks.buf.Admit(start, func(acc *aggregation.Accumulator) { acc.Merge(contrib) })
	metrics.IngestedEvents.WithLabelValues(e.def.Name, outcome.String()).Inc()

	if outcome == buffer.Dropped {
		metrics.DroppedEvents.WithLabelValues(e.def.Name).Inc()
		if e.opts.Hooks.OnDrop != nil {
			e.opts.Hooks.OnDrop(e.def.Name, groupKey, start)
		}
		slog.Debug("[Engine] Dropped late event",
			"aggregation", e.def.Name,
			"group", groupKey,
			"bucket_start", start,
		)
		return nil
	}

	slog.Debug("[Engine] Admitted event",
		"aggregation", e.def.Name,
		"group", groupKey,
		"bucket_start", start,
		"outcome", outcome.String(),
		"released", len(released),
	)

	e.enqueue(ks, released)
	return e.cascadePending(ctx, groupKey, ks)
}

// enqueue appends released slots to the key's cascade queue. Caller holds ks.mu.
func (e *Engine) enqueue(ks *keyState, slots []buffer.Slot) {
	for _, s := range slots {
		ks.pending = append(ks.pending, pendingFlush{slot: s})
		metrics.PendingBuckets.WithLabelValues(e.def.Name).Inc()
	}
}

// cascadePending cascades queued slots in release order and stops at the
// first failure, recording the level to resume from. Caller holds ks.mu.
func (e *Engine) cascadePending(ctx context.Context, groupKey string, ks *keyState) error {
	for len(ks.pending) > 0 {
		p := &ks.pending[0]
		ks.writes.Add(1)
		applied, err := e.cascader.Cascade(ctx, groupKey, p.slot.Start, p.slot.Acc, p.nextLevel)
		if err != nil {
			p.nextLevel = applied
			g := e.def.Granularities[applied]
			metrics.CascadeFailures.WithLabelValues(e.def.Name, g.String()).Inc()
			slog.Warn("[Engine] Cascade deferred",
				"aggregation", e.def.Name,
				"group", groupKey,
				"bucket_start", p.slot.Start,
				"level", g.String(),
				"pending", len(ks.pending),
				"error", err,
			)
			if !errors.Is(err, aggregation.ErrStorageUnavailable) {
				err = fmt.Errorf("%w: %w", aggregation.ErrStorageUnavailable, err)
			}
			return fmt.Errorf("engine %s: %w", e.def.Name, err)
		}
		ks.pending[0] = pendingFlush{}
		ks.pending = ks.pending[1:]
		metrics.PendingBuckets.WithLabelValues(e.def.Name).Dec()
		metrics.FlushedBuckets.WithLabelValues(e.def.Name).Inc()
	}
	ks.pending = nil
	return nil
}

// Flush drains every buffer and cascades everything queued. Keys are flushed
// lane by lane in sorted order; a failing key does not stop the others.
func (e *Engine) Flush(ctx context.Context) error {
	var errs error
	released := 0
	for _, ent := range e.allEntries() {
		ks := ent.state
		ks.mu.Lock()
		slots := ks.buf.Drain()
		e.enqueue(ks, slots)
		released += len(slots)
		if err := e.cascadePending(ctx, ent.groupKey, ks); err != nil {
			errs = multierr.Append(errs, err)
		}
		ks.mu.Unlock()
	}
	slog.Info("[Engine] Flushed buffers",
		"aggregation", e.def.Name,
		"released", released,
		"pending", e.Pending(),
	)
	return errs
}

// Close stops admission and flushes. Ingest fails with ErrClosed afterwards;
// queries keep reading persisted state. The store is not closed.
func (e *Engine) Close(ctx context.Context) error {
	for _, l := range e.lanes {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		for _, ent := range l.entries() {
			ent.state.mu.Lock()
			ent.state.closed = true
			ent.state.mu.Unlock()
		}
	}
	err := e.Flush(ctx)
	slog.Info("[Engine] Closed", "aggregation", e.def.Name, "pending", e.Pending())
	return err
}

// Pending returns the number of flushed buckets whose cascade has not completed.
func (e *Engine) Pending() int {
	n := 0
	for _, ent := range e.allEntries() {
		ent.state.mu.RLock()
		n += len(ent.state.pending)
		ent.state.mu.RUnlock()
	}
	return n
}

// Buffered returns the number of finest buckets retained in buffers.
func (e *Engine) Buffered() int {
	n := 0
	for _, ent := range e.allEntries() {
		ent.state.mu.RLock()
		n += ent.state.buf.Len()
		ent.state.mu.RUnlock()
	}
	return n
}
