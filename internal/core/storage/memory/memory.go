// Package memory is an in-process BucketStore. It keeps one table per
// granularity and copies rows on every read.
package memory

import (
	"context"
	"sync"

	"github.com/aevon-lab/rollupd/internal/core/aggregation"
	"github.com/aevon-lab/rollupd/internal/core/storage"
)

type rowKey struct {
	aggregation string
	groupKey    string
	bucketStart int64
}

type table struct {
	mu   sync.RWMutex
	rows map[rowKey]*aggregation.Accumulator
}

// Store implements storage.BucketStore and storage.Purger in memory.
type Store struct {
	tables map[aggregation.Granularity]*table
}

// New returns an empty store with one table per supported granularity.
func New() *Store {
	s := &Store{tables: make(map[aggregation.Granularity]*table, len(aggregation.Ladder))}
	for _, g := range aggregation.Ladder {
		s.tables[g] = &table{rows: make(map[rowKey]*aggregation.Accumulator)}
	}
	return s
}

func (s *Store) table(g aggregation.Granularity) *table {
	t, ok := s.tables[g]
	if !ok {
		panic("memory store: unknown granularity " + g.String())
	}
	return t
}

// Upsert merges acc into the row at key under the table lock.
func (s *Store) Upsert(_ context.Context, key aggregation.BucketKey, acc *aggregation.Accumulator) error {
	t := s.table(key.Granularity)
	rk := rowKey{key.Aggregation, key.GroupKey, key.BucketStart}

	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.rows[rk]
	if !ok {
		t.rows[rk] = acc.Clone()
		return nil
	}
	cur.Merge(acc)
	return nil
}

// Get returns a copy of the row at key, or nil if absent.
func (s *Store) Get(_ context.Context, key aggregation.BucketKey) (*aggregation.Accumulator, error) {
	t := s.table(key.Granularity)

	t.mu.RLock()
	defer t.mu.RUnlock()
	cur, ok := t.rows[rowKey{key.Aggregation, key.GroupKey, key.BucketStart}]
	if !ok {
		return nil, nil
	}
	return cur.Clone(), nil
}

// RangeScan copies the selected rows and returns them in bucket order.
func (s *Store) RangeScan(_ context.Context, req storage.ScanRequest) ([]storage.Row, error) {
	t := s.table(req.Granularity)

	t.mu.RLock()
	var out []storage.Row
	for rk, acc := range t.rows {
		key := aggregation.BucketKey{
			Aggregation: rk.aggregation,
			GroupKey:    rk.groupKey,
			Granularity: req.Granularity,
			BucketStart: rk.bucketStart,
		}
		if !req.Contains(key) {
			continue
		}
		out = append(out, storage.Row{Key: key, Acc: acc.Clone()})
	}
	t.mu.RUnlock()

	storage.SortRows(out)
	return out, nil
}

// Purge deletes rows of one aggregation and granularity older than olderThan.
func (s *Store) Purge(_ context.Context, aggName string, g aggregation.Granularity, olderThan int64) (int64, error) {
	t := s.table(g)

	t.mu.Lock()
	defer t.mu.Unlock()
	var n int64
	for rk := range t.rows {
		if rk.aggregation == aggName && rk.bucketStart < olderThan {
			delete(t.rows, rk)
			n++
		}
	}
	return n, nil
}

// Len returns the number of rows held at granularity g.
func (s *Store) Len(g aggregation.Granularity) int {
	t := s.table(g)
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }
