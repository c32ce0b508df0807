// Package aggregation owns the lifecycle of the configured aggregation
// definitions: one engine per definition, routed by source stream, plus the
// retention scheduler.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"go.uber.org/multierr"

	v1 "github.com/aevon-lab/rollupd/internal/api/v1"
	coreagg "github.com/aevon-lab/rollupd/internal/core/aggregation"
	"github.com/aevon-lab/rollupd/internal/core/storage"
	"github.com/aevon-lab/rollupd/internal/engine"
)

// ErrUnknownStream is returned when no definition consumes an event's stream.
var ErrUnknownStream = errors.New("no aggregation consumes stream")

// Manager runs one engine per definition over a shared bucket store.
type Manager struct {
	store    storage.BucketStore
	engines  map[string]*engine.Engine
	byStream map[string][]*engine.Engine
}

// NewManager compiles every definition in repo and starts an engine for each.
func NewManager(ctx context.Context, repo coreagg.DefinitionRepository, store storage.BucketStore, opts engine.Options) (*Manager, error) {
	defs, err := repo.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}

	m := &Manager{
		store:    store,
		engines:  make(map[string]*engine.Engine, len(defs)),
		byStream: make(map[string][]*engine.Engine),
	}
	for _, def := range defs {
		cd, err := coreagg.Compile(def)
		if err != nil {
			return nil, fmt.Errorf("compile definition %s: %w", def.Name, err)
		}
		if _, dup := m.engines[cd.Name]; dup {
			return nil, fmt.Errorf("duplicate definition %s", cd.Name)
		}
		e, err := engine.New(cd, store, opts)
		if err != nil {
			return nil, err
		}
		m.engines[cd.Name] = e
		m.byStream[cd.SourceStream] = append(m.byStream[cd.SourceStream], e)

		slog.Info("[Aggregation] Loaded definition",
			"name", cd.Name,
			"source_stream", cd.SourceStream,
			"group_by", cd.GroupBy,
			"granularities", len(cd.Granularities),
			"fingerprint", cd.Fingerprint,
		)
	}
	return m, nil
}

// Engine returns the engine running the named definition.
func (m *Manager) Engine(name string) (*engine.Engine, bool) {
	e, ok := m.engines[name]
	return e, ok
}

// Engines returns every engine ordered by name.
func (m *Manager) Engines() []*engine.Engine {
	out := make([]*engine.Engine, 0, len(m.engines))
	for _, e := range m.engines {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Store returns the shared bucket store.
func (m *Manager) Store() storage.BucketStore { return m.store }

// Ingest routes evt to every engine consuming its stream. Errors of the
// individual engines are combined.
func (m *Manager) Ingest(ctx context.Context, evt *v1.Event) error {
	engines := m.byStream[evt.Stream]
	if len(engines) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownStream, evt.Stream)
	}
	var errs error
	for _, e := range engines {
		errs = multierr.Append(errs, e.Ingest(ctx, evt))
	}
	return errs
}

// IngestBatch routes a batch of events. The returned slice holds the
// combined error of each event by index.
func (m *Manager) IngestBatch(ctx context.Context, events []*v1.Event) []error {
	errs := make([]error, len(events))

	byEngine := make(map[*engine.Engine][]int)
	for i, evt := range events {
		engines := m.byStream[evt.Stream]
		if len(engines) == 0 {
			errs[i] = fmt.Errorf("%w: %s", ErrUnknownStream, evt.Stream)
			continue
		}
		for _, e := range engines {
			byEngine[e] = append(byEngine[e], i)
		}
	}

	for e, indexes := range byEngine {
		batch := make([]*v1.Event, len(indexes))
		for j, i := range indexes {
			batch[j] = events[i]
		}
		for j, err := range e.IngestBatch(ctx, batch) {
			errs[indexes[j]] = multierr.Append(errs[indexes[j]], err)
		}
	}
	return errs
}

// Flush drains every engine.
func (m *Manager) Flush(ctx context.Context) error {
	var errs error
	for _, e := range m.Engines() {
		errs = multierr.Append(errs, e.Flush(ctx))
	}
	return errs
}

// Close closes every engine, then the store.
func (m *Manager) Close(ctx context.Context) error {
	var errs error
	for _, e := range m.Engines() {
		errs = multierr.Append(errs, e.Close(ctx))
	}
	if err := m.store.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("close bucket store: %w", err))
	}
	return errs
}
