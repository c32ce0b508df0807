package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aevon-lab/rollupd/internal/core/aggregation"
	"github.com/aevon-lab/rollupd/internal/metrics"
)

// DefaultMaxRetries bounds the attempts of one optimistic write.
const DefaultMaxRetries = 8

// RetryOnConflict runs attempt until it succeeds, returns an error other than
// ErrConflict, or maxAttempts attempts have conflicted. Exhausted retries
// surface as aggregation.ErrStorageUnavailable.
func RetryOnConflict(ctx context.Context, backend string, maxAttempts int, attempt func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxRetries
	}
	var err error
	for i := 0; i < maxAttempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", aggregation.ErrStorageUnavailable, ctxErr)
		}
		err = attempt()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		metrics.StoreConflicts.WithLabelValues(backend).Inc()
		slog.Debug("[Storage] Write conflict, retrying", "backend", backend, "attempt", i+1)
	}
	slog.Warn("[Storage] Write conflicts exhausted retries", "backend", backend, "attempts", maxAttempts)
	return fmt.Errorf("%w: %d conflicting attempts: %v", aggregation.ErrStorageUnavailable, maxAttempts, err)
}
