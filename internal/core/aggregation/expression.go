package aggregation

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

// Expression is a compiled per-event expression such as `price` or
// `price * quantity`, evaluated against an event's data map.
type Expression struct {
	source  string
	program *vm.Program
}

// CompileExpression compiles src once so it can be evaluated per event.
// Variables are resolved from the event data at run time.
func CompileExpression(src string) (*Expression, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("expression must not be empty")
	}
	program, err := expr.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("unable to compile expression '%s': %w", src, err)
	}
	return &Expression{source: src, program: program}, nil
}

// Source returns the expression text.
func (e *Expression) Source() string { return e.source }

// Eval runs the expression against data. A field that is absent from data
// evaluates to nil.
func (e *Expression) Eval(data map[string]interface{}) (interface{}, error) {
	out, err := expr.Run(e.program, normalizeNumbers(data))
	if err != nil {
		return nil, fmt.Errorf("unable to execute expression '%s': %w", e.source, err)
	}
	return out, nil
}

// normalizeNumbers returns data with json.Number values converted to
// float64 so expressions can do arithmetic on decoded JSON.
func normalizeNumbers(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return map[string]interface{}{}
	}
	var out map[string]interface{}
	for k, v := range data {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string]interface{}, len(data))
			for k2, v2 := range data {
				out[k2] = v2
			}
		}
		if f, ok := ToFloat64(n); ok {
			out[k] = f
		}
	}
	if out == nil {
		return data
	}
	return out
}

// ComponentName derives the persisted component name for an expression:
// lower-case alphanumerics joined by underscores. "price * quantity" → "price_quantity".
func ComponentName(src string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(src) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	name := b.String()
	if name == "" || unicode.IsDigit(rune(name[0])) {
		name = "expr_" + name
	}
	return name
}
