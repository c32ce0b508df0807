package aggregation

import "errors"

// Sentinel errors shared by the engine, the stores and the HTTP layer.
// Callers wrap them with fmt.Errorf("...: %w") and test with errors.Is.
var (
	// ErrInvalidTimestamp is returned when an event timestamp cannot be parsed.
	// The event is rejected; the stream continues.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrInvalidEvent is returned when an event cannot be evaluated against a
	// definition (non-numeric value for a sum-like component, expression failure).
	ErrInvalidEvent = errors.New("invalid event")

	// ErrStorageUnavailable is returned when the bucket store fails during an
	// upsert or cascade, or when write conflicts exceed the retry bound.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidQuery is returned for unsupported granularities, malformed
	// ranges and malformed wildcard patterns.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrClosed is returned by operations on an engine that has been closed.
	ErrClosed = errors.New("engine closed")
)
