// Package badger is an embedded BucketStore on BadgerDB.
//
// Keys are laid out as <granularity>/<aggregation>/<bucketStart>/<groupKey>,
// with bucketStart encoded as 8 order-preserving bytes, so one prefix
// iteration yields rows in bucket order and then group order.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/aevon-lab/rollupd/internal/core/aggregation"
	"github.com/aevon-lab/rollupd/internal/core/storage"
)

const backendName = "badger"

// Config configures the badger store.
type Config struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string

	// InMemory keeps all data in memory. Useful for tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger

	// MaxRetries bounds the attempts of one merge under transaction conflicts.
	MaxRetries int
}

// badgerLogger bridges badger's logger interface to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store implements storage.BucketStore and storage.Purger on BadgerDB.
type Store struct {
	db         *badger.DB
	maxRetries int
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = storage.DefaultMaxRetries
	}
	return &Store{db: db, maxRetries: maxRetries}, nil
}

func prefix(g aggregation.Granularity, aggName string) []byte {
	return []byte(g.String() + "/" + aggName + "/")
}

// encodeStart maps int64 to big-endian bytes whose byte order matches
// numeric order, including negative starts.
func encodeStart(start int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(start)^(1<<63))
	return b[:]
}

func decodeStart(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b) ^ (1 << 63))
}

func encodeKey(key aggregation.BucketKey) []byte {
	p := prefix(key.Granularity, key.Aggregation)
	out := make([]byte, 0, len(p)+9+len(key.GroupKey))
	out = append(out, p...)
	out = append(out, encodeStart(key.BucketStart)...)
	out = append(out, '/')
	return append(out, key.GroupKey...)
}

func decodeKey(p, raw []byte) (start int64, group string, ok bool) {
	rest := raw[len(p):]
	if len(rest) < 9 || rest[8] != '/' {
		return 0, "", false
	}
	return decodeStart(rest[:8]), string(rest[9:]), true
}

// Upsert merges acc into the row at key in one transaction, retrying on
// transaction conflicts.
func (s *Store) Upsert(ctx context.Context, key aggregation.BucketKey, acc *aggregation.Accumulator) error {
	k := encodeKey(key)
	return storage.RetryOnConflict(ctx, backendName, s.maxRetries, func() error {
		err := s.db.Update(func(txn *badger.Txn) error {
			merged := acc.Clone()
			item, err := txn.Get(k)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
			case err != nil:
				return err
			default:
				raw, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				cur, err := aggregation.UnmarshalColumns(raw)
				if err != nil {
					return err
				}
				cur.Merge(acc)
				merged = cur
			}
			doc, err := merged.MarshalColumns()
			if err != nil {
				return err
			}
			return txn.Set(k, doc)
		})
		if errors.Is(err, badger.ErrConflict) {
			return fmt.Errorf("bucket upsert %s: %w", key, storage.ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("bucket upsert %s: %w: %w", key, aggregation.ErrStorageUnavailable, err)
		}
		return nil
	})
}

// Get returns the row at key, or nil if it does not exist.
func (s *Store) Get(_ context.Context, key aggregation.BucketKey) (*aggregation.Accumulator, error) {
	var acc *aggregation.Accumulator
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		acc, err = aggregation.UnmarshalColumns(raw)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bucket get %s: %w", key, err)
	}
	return acc, nil
}

// RangeScan iterates the selected prefix from Start in one read transaction.
func (s *Store) RangeScan(ctx context.Context, req storage.ScanRequest) ([]storage.Row, error) {
	p := prefix(req.Granularity, req.Aggregation)
	seek := append(append([]byte{}, p...), encodeStart(req.Start)...)

	var out []storage.Row
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(p); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			start, group, ok := decodeKey(p, item.Key())
			if !ok {
				continue
			}
			if start >= req.End {
				break
			}
			if req.GroupKey != "" && group != req.GroupKey {
				continue
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			acc, err := aggregation.UnmarshalColumns(raw)
			if err != nil {
				return err
			}
			out = append(out, storage.Row{
				Key: aggregation.BucketKey{
					Aggregation: req.Aggregation,
					GroupKey:    group,
					Granularity: req.Granularity,
					BucketStart: start,
				},
				Acc: acc,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("range scan %s/%s: %w: %w", req.Granularity, req.Aggregation, aggregation.ErrStorageUnavailable, err)
	}
	return out, nil
}

// Purge deletes rows of one aggregation and granularity older than olderThan.
func (s *Store) Purge(_ context.Context, aggName string, g aggregation.Granularity, olderThan int64) (int64, error) {
	p := prefix(g, aggName)
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(p); it.Next() {
			k := it.Item().KeyCopy(nil)
			start, _, ok := decodeKey(p, k)
			if !ok {
				continue
			}
			if start >= olderThan {
				break
			}
			keys = append(keys, k)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge %s/%s: scan: %w", g, aggName, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			wb.Cancel()
			return 0, fmt.Errorf("purge %s/%s: delete: %w", g, aggName, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("purge %s/%s: flush: %w", g, aggName, err)
	}
	return int64(len(keys)), nil
}

// Ping reports whether the database is open.
func (s *Store) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close badger database: %w", err)
	}
	return nil
}
