package aggregation

import (
	"fmt"
	"sort"
	"strings"
)

// GroupKeySeparator joins multiple group_by values into one group key.
const GroupKeySeparator = ":"

// groupPartEscaper escapes the separator and the escape character inside a
// part of a multi-field group key, so distinct value tuples never join to
// the same key.
var groupPartEscaper = strings.NewReplacer(`\`, `\\`, GroupKeySeparator, `\`+GroupKeySeparator)

// CompiledDefinition is a validated definition with its expressions compiled.
// It is immutable and safe for concurrent use.
type CompiledDefinition struct {
	Definition
	components []component
}

type component struct {
	name     string
	expr     *Expression
	summable bool
	last     bool
}

// Compile validates def and compiles every distinct component expression.
// Outputs sharing an expression share one component: avg(price) and
// sum(price) both read the sum/count state of "price".
func Compile(def Definition) (*CompiledDefinition, error) {
	def.GroupBy = append([]string(nil), def.GroupBy...)
	def.Granularities = append([]Granularity(nil), def.Granularities...)
	def.Outputs = append([]Output(nil), def.Outputs...)
	if err := def.Validate(); err != nil {
		return nil, err
	}

	byName := make(map[string]*component)
	sources := make(map[string]string)
	for _, out := range def.Outputs {
		normalized := strings.Join(strings.Fields(out.Expr), "")
		if prev, ok := sources[out.Component]; ok && prev != normalized {
			return nil, fmt.Errorf("definition %q: expressions %q and %q map to the same component %q",
				def.Name, prev, normalized, out.Component)
		}
		sources[out.Component] = normalized

		c, ok := byName[out.Component]
		if !ok {
			e, err := CompileExpression(out.Expr)
			if err != nil {
				return nil, fmt.Errorf("definition %q: output %q: %w", def.Name, out.As, err)
			}
			c = &component{name: out.Component, expr: e}
			byName[out.Component] = c
		}
		if Operators[out.Function].Summable() {
			c.summable = true
		} else {
			c.last = true
		}
	}

	cd := &CompiledDefinition{Definition: def}
	for _, c := range byName {
		cd.components = append(cd.components, *c)
	}
	sort.Slice(cd.components, func(i, j int) bool { return cd.components[i].name < cd.components[j].name })
	return cd, nil
}

// Finest returns the finest configured granularity.
func (d *CompiledDefinition) Finest() Granularity { return d.Granularities[0] }

// Level returns the cascade level of g, or -1 if g is not configured.
func (d *CompiledDefinition) Level(g Granularity) int {
	for i, cg := range d.Granularities {
		if cg == g {
			return i
		}
	}
	return -1
}

// GroupKey extracts the group key of an event. A single group_by value is the
// key as is; several values are escaped and joined by GroupKeySeparator
// ("x\:y:z" for ("x:y", "z")). Missing fields contribute an empty string.
func (d *CompiledDefinition) GroupKey(data map[string]interface{}) string {
	switch len(d.GroupBy) {
	case 0:
		return ""
	case 1:
		return groupValue(data[d.GroupBy[0]])
	}
	parts := make([]string, len(d.GroupBy))
	for i, f := range d.GroupBy {
		parts[i] = groupPartEscaper.Replace(groupValue(data[f]))
	}
	return strings.Join(parts, GroupKeySeparator)
}

func groupValue(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Contribution evaluates every component for one event and returns the
// event's contribution as an accumulator. Evaluation is all-or-nothing: on
// error nothing is returned and the event must be rejected. A nil result for
// a sum-like component contributes neither to sum nor count.
func (d *CompiledDefinition) Contribution(data map[string]interface{}) (*Accumulator, error) {
	acc := NewAccumulator()
	for _, c := range d.components {
		v, err := c.expr.Eval(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		if c.summable && v != nil {
			f, ok := ToFloat64(v)
			if !ok {
				return nil, fmt.Errorf("%w: component %s: non-numeric value %v", ErrInvalidEvent, c.name, v)
			}
			acc.Add(c.name, f)
		}
		if c.last {
			acc.SetLast(c.name, v)
		}
	}
	return acc, nil
}

// MergeEvent folds one event into acc: sum-like components add the
// evaluated value and count it, last-like components overwrite.
func (d *CompiledDefinition) MergeEvent(acc *Accumulator, data map[string]interface{}) error {
	contrib, err := d.Contribution(data)
	if err != nil {
		return err
	}
	acc.Merge(contrib)
	return nil
}

// Project reads every output value from a bucket accumulator.
func (d *CompiledDefinition) Project(acc *Accumulator) map[string]interface{} {
	values := make(map[string]interface{}, len(d.Outputs))
	for _, out := range d.Outputs {
		c, _ := acc.Component(out.Component)
		values[out.As] = Operators[out.Function].Read(c)
	}
	return values
}
