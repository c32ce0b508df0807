package aggregation

import (
	"context"
	"fmt"
	"sort"

	coreagg "github.com/aevon-lab/rollupd/internal/core/aggregation"
)

// InMemoryDefinitionRepository implements coreagg.DefinitionRepository over a
// fixed set of definitions. It backs tests and embedded use.
type InMemoryDefinitionRepository struct {
	defs map[string]coreagg.Definition
}

// NewInMemoryDefinitionRepository creates a repository holding defs.
func NewInMemoryDefinitionRepository(defs ...coreagg.Definition) *InMemoryDefinitionRepository {
	repo := &InMemoryDefinitionRepository{
		defs: make(map[string]coreagg.Definition, len(defs)),
	}
	for _, def := range defs {
		repo.defs[def.Name] = def
	}
	return repo
}

func (r *InMemoryDefinitionRepository) Get(_ context.Context, name string) (*coreagg.Definition, error) {
	if def, ok := r.defs[name]; ok {
		return &def, nil
	}
	return nil, fmt.Errorf("aggregation definition %q not found", name)
}

func (r *InMemoryDefinitionRepository) List(_ context.Context, sourceStream string) ([]coreagg.Definition, error) {
	var result []coreagg.Definition
	for _, def := range r.defs {
		if sourceStream == "" || def.SourceStream == sourceStream {
			result = append(result, def)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}
