package v1

import (
	"fmt"
	"time"
)

// Event is the atomic unit of the system.
// It separates the "Envelope" (System Attributes) from the "Letter" (Data).
type Event struct {
	// --- System Attributes (The Envelope) ---

	// ID identifies the event in logs. Assigned on ingest when the client omits it.
	ID string `json:"id"`

	// Stream is the source stream name. Every definition whose source_stream
	// matches receives the event.
	Stream string `json:"stream"`

	// Timestamp is the client-side event time: epoch millis as a number or
	// numeric string, or "yyyy-MM-dd HH:mm:ss[ +HH:MM]". Used when the
	// definition names no timestamp_field. Optional.
	Timestamp interface{} `json:"timestamp,omitempty"`

	// Metadata is a generic key-value store for context (e.g., source, trace_id, region).
	Metadata map[string]string `json:"metadata,omitempty"`

	// IngestedAt is when rollupd received the event.
	// This should be set by the ingestion layer, not the user.
	IngestedAt time.Time `json:"ingested_at"`

	// --- User Payload (The Letter) ---

	// Data holds the attributes aggregations group by and evaluate.
	Data map[string]interface{} `json:"data"`
}

// Validate ensures the event has all required system attributes.
func (e *Event) Validate() error {
	if e.Stream == "" {
		return fmt.Errorf("stream is required")
	}

	if e.Data == nil {
		return fmt.Errorf("data is required")
	}

	return nil
}
