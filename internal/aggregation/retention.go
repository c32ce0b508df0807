package aggregation

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	coreagg "github.com/aevon-lab/rollupd/internal/core/aggregation"
	"github.com/aevon-lab/rollupd/internal/core/storage"
	"github.com/aevon-lab/rollupd/internal/metrics"
)

const finalPurgeTimeout = 30 * time.Second

// RetentionPolicy is the maximum age kept per granularity. Granularities
// without an entry are kept forever.
type RetentionPolicy map[coreagg.Granularity]time.Duration

// RetentionScheduler periodically deletes buckets older than the policy.
type RetentionScheduler struct {
	interval time.Duration
	purger   storage.Purger
	manager  *Manager
	policy   RetentionPolicy
	loc      *time.Location
	nowFn    func() time.Time
}

// NewRetentionScheduler creates a scheduler purging the buckets of every
// engine in manager.
func NewRetentionScheduler(interval time.Duration, purger storage.Purger, manager *Manager, policy RetentionPolicy, loc *time.Location) *RetentionScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &RetentionScheduler{
		interval: interval,
		purger:   purger,
		manager:  manager,
		policy:   policy,
		loc:      loc,
		nowFn:    time.Now,
	}
}

// Start purges once, then on every tick until ctx is cancelled.
func (s *RetentionScheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[Retention] Starting retention scheduler",
		"interval", s.interval,
		"granularities", len(s.policy),
	)

	s.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-ctx.Done():
			slog.Info("[Retention] Stopping (context cancelled)")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), finalPurgeTimeout)
			defer cancel()
			s.runOnce(shutdownCtx)
			return nil
		}
	}
}

func (s *RetentionScheduler) runOnce(ctx context.Context) {
	n, err := s.PurgeOnce(ctx)
	if err != nil {
		slog.Error("[Retention] Purge failed", "purged", n, "error", err)
		return
	}
	if n > 0 {
		slog.Info("[Retention] Purged expired buckets", "purged", n)
	}
}

// PurgeOnce applies the policy to every engine and granularity once and
// returns the number of rows deleted.
func (s *RetentionScheduler) PurgeOnce(ctx context.Context) (int64, error) {
	now := s.nowFn().UnixMilli()
	var total int64
	var errs error
	for _, e := range s.manager.Engines() {
		for _, g := range e.Definition().Granularities {
			maxAge, ok := s.policy[g]
			if !ok || maxAge <= 0 {
				continue
			}
			cutoff := coreagg.BucketStart(now-maxAge.Milliseconds(), g, s.loc)
			n, err := s.purger.Purge(ctx, e.Name(), g, cutoff)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			total += n
			metrics.PurgedRows.WithLabelValues(e.Name(), g.String()).Add(float64(n))
		}
	}
	return total, errs
}
