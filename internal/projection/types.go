package projection

import (
	"github.com/aevon-lab/rollupd/internal/core/query"
)

// AggregateQueryRequest represents the query parameters of
// GET /v1/aggregations/:name.
type AggregateQueryRequest struct {
	Name        string
	Granularity string
	Within      []string // none, one pattern, or start and end
	GroupKey    string
	At          string
}

// AggregateQueryResponse represents the response for an aggregate query.
type AggregateQueryResponse struct {
	Aggregation string         `json:"aggregation"`
	Granularity string         `json:"granularity"`
	GroupKey    string         `json:"group_key,omitempty"`
	Within      []string       `json:"within,omitempty"`
	At          string         `json:"at,omitempty"`
	Rows        []query.Result `json:"rows"`

	// Buffered and Pending count finest buckets not yet persisted at every
	// granularity. Their data is included in Rows.
	Buffered int `json:"buffered_buckets"`
	Pending  int `json:"pending_cascades"`
}

// DefinitionSummary describes one loaded aggregation.
type DefinitionSummary struct {
	Name           string   `json:"name"`
	SourceStream   string   `json:"source_stream"`
	GroupBy        []string `json:"group_by,omitempty"`
	TimestampField string   `json:"timestamp_field,omitempty"`
	Granularities  []string `json:"granularities"`
	Outputs        []string `json:"outputs"`
	Fingerprint    string   `json:"fingerprint"`
}

// FlushResponse reports the state after an explicit flush.
type FlushResponse struct {
	Aggregation string `json:"aggregation"`
	Status      string `json:"status"`
	Pending     int    `json:"pending_cascades"`
}
