package aggregation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpression_Eval(t *testing.T) {
	e, err := CompileExpression("price * quantity")
	require.NoError(t, err)
	require.Equal(t, "price * quantity", e.Source())

	v, err := e.Eval(map[string]interface{}{"price": 500.0, "quantity": 7})
	require.NoError(t, err)
	f, ok := ToFloat64(v)
	require.True(t, ok)
	require.Equal(t, 3500.0, f)
}

func TestExpression_EvalDecodedJSONNumbers(t *testing.T) {
	e, err := CompileExpression("price * quantity")
	require.NoError(t, err)

	data := map[string]interface{}{"price": json.Number("100"), "quantity": json.Number("96")}
	v, err := e.Eval(data)
	require.NoError(t, err)
	require.Equal(t, 9600.0, v)

	// The caller's map is left untouched.
	require.Equal(t, json.Number("100"), data["price"])
}

func TestExpression_MissingFieldIsNil(t *testing.T) {
	e, err := CompileExpression("price")
	require.NoError(t, err)

	v, err := e.Eval(map[string]interface{}{"symbol": "IBM"})
	require.NoError(t, err)
	require.Nil(t, v)

	v, err = e.Eval(nil)
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestCompileExpression_Invalid(t *testing.T) {
	_, err := CompileExpression("")
	require.Error(t, err)
	_, err = CompileExpression("price *")
	require.Error(t, err)
}

func TestComponentName(t *testing.T) {
	tests := map[string]string{
		"price":            "price",
		"price * quantity": "price_quantity",
		"Price*Quantity":   "price_quantity",
		"1":                "expr_1",
		"(a + b) / 2":      "a_b_2",
		"+":                "expr_",
	}
	for src, want := range tests {
		require.Equal(t, want, ComponentName(src), src)
	}
}
