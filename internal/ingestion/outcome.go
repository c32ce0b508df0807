package ingestion

import (
	"errors"

	"github.com/aevon-lab/rollupd/internal/aggregation"
	coreagg "github.com/aevon-lab/rollupd/internal/core/aggregation"
)

// Outcome classifies the result of ingesting one event.
type Outcome int

const (
	// Accepted: admitted by every consuming definition.
	Accepted Outcome = iota
	// Deferred: admitted, but a cascade it triggered is queued for retry.
	Deferred
	// Rejected: the event is malformed for at least one consuming definition.
	Rejected
	// Unrouted: no definition consumes the event's stream.
	Unrouted
	// ShuttingDown: the engines no longer admit events.
	ShuttingDown
	// Failed: any other error.
	Failed
)

var outcomeNames = map[Outcome]string{
	Accepted:     "accepted",
	Deferred:     "deferred",
	Rejected:     "rejected",
	Unrouted:     "unrouted",
	ShuttingDown: "shutting_down",
	Failed:       "failed",
}

func (o Outcome) String() string { return outcomeNames[o] }

// Admitted reports whether the event reached the buckets.
func (o Outcome) Admitted() bool { return o == Accepted || o == Deferred }

// Classify maps an Ingest error, possibly combining several engines, to an
// outcome. The most severe cause wins.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Accepted
	case errors.Is(err, coreagg.ErrClosed):
		return ShuttingDown
	case errors.Is(err, coreagg.ErrInvalidTimestamp), errors.Is(err, coreagg.ErrInvalidEvent):
		return Rejected
	case errors.Is(err, aggregation.ErrUnknownStream):
		return Unrouted
	case errors.Is(err, coreagg.ErrStorageUnavailable):
		return Deferred
	default:
		return Failed
	}
}
