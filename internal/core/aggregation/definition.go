package aggregation

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultGranularities is used when a definition does not name any.
const defaultGranularities = "sec...year"

var definitionNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]*$`)

// Definition describes one incremental aggregation: which stream it consumes,
// how events are grouped, which timestamp they are bucketed by, which
// granularities are materialized and which values are selected.
// Definitions are loaded at startup from YAML files and fingerprinted.
type Definition struct {
	Name           string
	SourceStream   string
	GroupBy        []string
	TimestampField string // empty: bucket by arrival time
	Granularities  []Granularity
	Outputs        []Output
	Fingerprint    string // SHA-256 of the raw YAML file; computed at load time
}

// rawDefinition is the on-disk YAML shape.
// granularities accepts either "sec...year" or a list of names.
type rawDefinition struct {
	Name           string        `yaml:"name"`
	SourceStream   string        `yaml:"source_stream"`
	GroupBy        []string      `yaml:"group_by"`
	TimestampField string        `yaml:"timestamp_field"`
	Granularities  granularities `yaml:"granularities"`
	Select         []Output      `yaml:"select"`
}

type granularities []Granularity

func (g *granularities) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := ParseGranularities(value.Value)
		if err != nil {
			return err
		}
		*g = parsed
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		parsed, err := NormalizeGranularities(names)
		if err != nil {
			return err
		}
		*g = parsed
	default:
		return fmt.Errorf("line %d: granularities must be a string or a list", value.Line)
	}
	return nil
}

// ParseDefinition decodes and validates one YAML definition document.
// A document with an empty name yields (nil, nil).
func ParseDefinition(data []byte) (*Definition, error) {
	var raw rawDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw.Name == "" {
		return nil, nil
	}

	def := &Definition{
		Name:           raw.Name,
		SourceStream:   raw.SourceStream,
		GroupBy:        raw.GroupBy,
		TimestampField: raw.TimestampField,
		Granularities:  raw.Granularities,
		Outputs:        raw.Select,
		Fingerprint:    fmt.Sprintf("%x", sha256.Sum256(data)),
	}
	if len(def.Granularities) == 0 {
		def.Granularities, _ = ParseGranularities(defaultGranularities)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// Validate checks the definition and fills in each output's component name.
func (d *Definition) Validate() error {
	if !definitionNamePattern.MatchString(d.Name) {
		return fmt.Errorf("definition %q: name must match %s", d.Name, definitionNamePattern)
	}
	if d.SourceStream == "" {
		return fmt.Errorf("definition %q: source_stream must not be empty", d.Name)
	}
	if len(d.Granularities) == 0 {
		return fmt.Errorf("definition %q: granularities must not be empty", d.Name)
	}
	for _, g := range d.Granularities {
		if !g.Valid() {
			return fmt.Errorf("definition %q: unknown granularity %d", d.Name, int(g))
		}
	}
	if len(d.Outputs) == 0 {
		return fmt.Errorf("definition %q: select must name at least one output", d.Name)
	}

	seen := make(map[string]bool, len(d.Outputs))
	for i := range d.Outputs {
		out := &d.Outputs[i]
		if out.As == "" {
			return fmt.Errorf("definition %q: select[%d]: as must not be empty", d.Name, i)
		}
		if seen[out.As] {
			return fmt.Errorf("definition %q: duplicate output %q", d.Name, out.As)
		}
		seen[out.As] = true

		out.Function = strings.ToLower(out.Function)
		if !ValidFunction(out.Function) {
			return fmt.Errorf("definition %q: output %q: unsupported function %q", d.Name, out.As, out.Function)
		}
		if out.Expr == "" {
			if out.Function != FuncCount {
				return fmt.Errorf("definition %q: output %q: expr must not be empty", d.Name, out.As)
			}
			out.Expr = "1"
		}
		out.Component = ComponentName(out.Expr)
	}
	return nil
}

// DefinitionRepository defines the interface for loading aggregation definitions.
type DefinitionRepository interface {
	// Get returns the definition with the given name, or an error if not found.
	Get(ctx context.Context, name string) (*Definition, error)

	// List returns all loaded definitions, optionally filtered by source stream.
	List(ctx context.Context, sourceStream string) ([]Definition, error)
}

// FileSystemDefinitionRepository loads definitions from *.yaml files in a
// directory. Each file contains exactly one definition at the top level.
// Definitions are loaded once at startup; there is no hot reload.
type FileSystemDefinitionRepository struct {
	dir  string
	defs map[string]Definition // keyed by Name
}

// NewFileSystemDefinitionRepository creates a repository and eagerly loads
// all definitions from dir. A malformed or invalid file fails the load.
func NewFileSystemDefinitionRepository(dir string) (*FileSystemDefinitionRepository, error) {
	repo := &FileSystemDefinitionRepository{
		dir:  dir,
		defs: make(map[string]Definition),
	}
	if err := repo.load(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *FileSystemDefinitionRepository) load() error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return nil // no definitions directory: zero aggregations configured
	}
	if err != nil {
		return fmt.Errorf("aggregation definition dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("aggregation definition path %q is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading aggregation definition dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading definition file %s: %w", path, err)
		}

		def, err := ParseDefinition(data)
		if err != nil {
			return fmt.Errorf("parsing definition file %s: %w", path, err)
		}
		if def == nil {
			continue // skip empty / comment-only files
		}

		if _, exists := r.defs[def.Name]; exists {
			return fmt.Errorf("definition %q: duplicate name (check multiple YAML files)", def.Name)
		}
		r.defs[def.Name] = *def
	}
	return nil
}

// Len returns the number of loaded definitions.
func (r *FileSystemDefinitionRepository) Len() int { return len(r.defs) }

// Get returns the definition with the given name, or an error if not found.
func (r *FileSystemDefinitionRepository) Get(_ context.Context, name string) (*Definition, error) {
	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("aggregation definition %q not found", name)
	}
	return &def, nil
}

// List returns all loaded definitions ordered by name, optionally filtered
// by source stream.
func (r *FileSystemDefinitionRepository) List(_ context.Context, sourceStream string) ([]Definition, error) {
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		if sourceStream != "" && def.SourceStream != sourceStream {
			continue
		}
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
