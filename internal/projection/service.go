package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aevon-lab/rollupd/internal/core/query"
	"github.com/aevon-lab/rollupd/internal/engine"
)

// ErrUnknownAggregation marks a request naming no loaded aggregation.
var ErrUnknownAggregation = errors.New("unknown aggregation")

// Engines resolves aggregation names to their engines.
type Engines interface {
	Engine(name string) (*engine.Engine, bool)
	Engines() []*engine.Engine
}

// Service implements the projection/query layer. Reads combine persisted
// buckets with the in-flight state of the engine.
type Service struct {
	engines Engines
}

// NewService creates a new projection service.
func NewService(engines Engines) *Service {
	if engines == nil {
		panic("projection: engines must not be nil")
	}
	return &Service{engines: engines}
}

// QueryAggregates reads the buckets selected by req.
func (s *Service) QueryAggregates(ctx context.Context, req AggregateQueryRequest) (*AggregateQueryResponse, error) {
	e, ok := s.engines.Engine(req.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAggregation, req.Name)
	}

	rows, err := e.Query(ctx, query.Request{
		GroupKey:    req.GroupKey,
		Granularity: req.Granularity,
		Within:      req.Within,
		At:          req.At,
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("Aggregate query served",
		"aggregation", req.Name,
		"granularity", req.Granularity,
		"group", req.GroupKey,
		"rows", len(rows))

	return &AggregateQueryResponse{
		Aggregation: req.Name,
		Granularity: req.Granularity,
		GroupKey:    req.GroupKey,
		Within:      req.Within,
		At:          req.At,
		Rows:        rows,
		Buffered:    e.Buffered(),
		Pending:     e.Pending(),
	}, nil
}

// Flush drains the buffers of the named aggregation.
func (s *Service) Flush(ctx context.Context, name string) (*FlushResponse, error) {
	e, ok := s.engines.Engine(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAggregation, name)
	}
	err := e.Flush(ctx)
	resp := &FlushResponse{Aggregation: name, Status: "flushed", Pending: e.Pending()}
	if err != nil {
		resp.Status = "deferred"
	}
	return resp, err
}

// Definitions lists the loaded aggregations ordered by name.
func (s *Service) Definitions() []DefinitionSummary {
	engines := s.engines.Engines()
	out := make([]DefinitionSummary, 0, len(engines))
	for _, e := range engines {
		def := e.Definition()
		summary := DefinitionSummary{
			Name:           def.Name,
			SourceStream:   def.SourceStream,
			GroupBy:        def.GroupBy,
			TimestampField: def.TimestampField,
			Fingerprint:    def.Fingerprint,
		}
		for _, g := range def.Granularities {
			summary.Granularities = append(summary.Granularities, g.String())
		}
		for _, o := range def.Outputs {
			summary.Outputs = append(summary.Outputs, o.As)
		}
		out = append(out, summary)
	}
	return out
}
