package aggregation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Persisted column prefixes. A component named "price" is stored as
// sum_price, count_price and last_price.
const (
	sumPrefix   = "sum_"
	countPrefix = "count_"
	lastPrefix  = "last_"
)

// ComponentState is the running state of one aggregate component.
// Sum and Count back sum/avg/count outputs; Last backs last-value outputs.
type ComponentState struct {
	Sum     float64
	Count   int64
	Last    interface{}
	HasLast bool
}

// Avg returns Sum/Count; ok is false when no value has been counted.
func (c ComponentState) Avg() (avg float64, ok bool) {
	if c.Count == 0 {
		return 0, false
	}
	return c.Sum / float64(c.Count), true
}

// Accumulator holds the component states of one bucket (or one event's
// contribution to it). The zero value is not usable; call NewAccumulator.
type Accumulator struct {
	Components map[string]ComponentState
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{Components: make(map[string]ComponentState)}
}

// Add folds one numeric value into a sum-like component.
func (a *Accumulator) Add(component string, v float64) {
	c := a.Components[component]
	c.Sum += v
	c.Count++
	a.Components[component] = c
}

// SetLast overwrites the last value of a component. A nil v is a valid
// last value and is distinct from no value at all.
func (a *Accumulator) SetLast(component string, v interface{}) {
	c := a.Components[component]
	c.Last = v
	c.HasLast = true
	a.Components[component] = c
}

// Component returns the state of one component.
func (a *Accumulator) Component(name string) (ComponentState, bool) {
	c, ok := a.Components[name]
	return c, ok
}

// Merge folds b into a: sums and counts add, a last value in b overwrites a's.
// b is treated as the later of the two.
func (a *Accumulator) Merge(b *Accumulator) {
	if b == nil {
		return
	}
	for name, inc := range b.Components {
		cur := a.Components[name]
		cur.Sum += inc.Sum
		cur.Count += inc.Count
		if inc.HasLast {
			cur.Last = inc.Last
			cur.HasLast = true
		}
		a.Components[name] = cur
	}
}

// Clone returns a deep copy of the component map. Last values are copied by
// reference; they are scalars produced by expression evaluation.
func (a *Accumulator) Clone() *Accumulator {
	out := &Accumulator{Components: make(map[string]ComponentState, len(a.Components))}
	for k, v := range a.Components {
		out.Components[k] = v
	}
	return out
}

// IsEmpty reports whether nothing has been merged into a.
func (a *Accumulator) IsEmpty() bool {
	return a == nil || len(a.Components) == 0
}

// Columns flattens the accumulator into its persisted column layout.
// Components with no counted values omit sum_/count_; components with no
// last value omit last_.
func (a *Accumulator) Columns() map[string]interface{} {
	cols := make(map[string]interface{}, len(a.Components)*3)
	for name, c := range a.Components {
		if c.Count != 0 {
			cols[sumPrefix+name] = c.Sum
			cols[countPrefix+name] = c.Count
		}
		if c.HasLast {
			cols[lastPrefix+name] = c.Last
		}
	}
	return cols
}

// MarshalColumns encodes the column layout as a JSON document.
func (a *Accumulator) MarshalColumns() ([]byte, error) {
	return json.Marshal(a.Columns())
}

// UnmarshalColumns decodes a JSON column document produced by MarshalColumns.
func UnmarshalColumns(data []byte) (*Accumulator, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var cols map[string]interface{}
	if err := dec.Decode(&cols); err != nil {
		return nil, fmt.Errorf("decoding bucket columns: %w", err)
	}
	return AccumulatorFromColumns(cols)
}

// AccumulatorFromColumns rebuilds an accumulator from its column layout.
func AccumulatorFromColumns(cols map[string]interface{}) (*Accumulator, error) {
	acc := NewAccumulator()
	for col, raw := range cols {
		switch {
		case strings.HasPrefix(col, sumPrefix):
			name := strings.TrimPrefix(col, sumPrefix)
			f, ok := ToFloat64(raw)
			if !ok {
				return nil, fmt.Errorf("column %s: non-numeric sum %v", col, raw)
			}
			c := acc.Components[name]
			c.Sum = f
			acc.Components[name] = c
		case strings.HasPrefix(col, countPrefix):
			name := strings.TrimPrefix(col, countPrefix)
			f, ok := ToFloat64(raw)
			if !ok {
				return nil, fmt.Errorf("column %s: non-numeric count %v", col, raw)
			}
			c := acc.Components[name]
			c.Count = int64(f)
			acc.Components[name] = c
		case strings.HasPrefix(col, lastPrefix):
			name := strings.TrimPrefix(col, lastPrefix)
			v := raw
			if n, ok := raw.(json.Number); ok {
				f, err := n.Float64()
				if err != nil {
					return nil, fmt.Errorf("column %s: %w", col, err)
				}
				v = f
			}
			c := acc.Components[name]
			c.Last = v
			c.HasLast = true
			acc.Components[name] = c
		default:
			return nil, fmt.Errorf("unknown bucket column %q", col)
		}
	}
	return acc, nil
}
