package aggregation

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// ToFloat64 converts a value produced by JSON decoding or expression
// evaluation to float64. Numeric strings ("12.50") are parsed exactly with
// decimal before conversion. ok is false for nil and non-numeric values.
func ToFloat64(v interface{}) (f float64, ok bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return 0, false
		}
		return d.InexactFloat64(), true
	case decimal.Decimal:
		return val.InexactFloat64(), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		return d.InexactFloat64(), true
	}
	return 0, false
}
