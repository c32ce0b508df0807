package aggregation

import "fmt"

// Supported aggregate functions.
// avg is derived on read from the component's sum and count; it is never stored.
const (
	FuncSum   = "sum"
	FuncAvg   = "avg"
	FuncCount = "count"
	FuncLast  = "last"
)

// BucketKey uniquely identifies one materialized bucket.
// BucketStart is epoch millis aligned to Granularity in the engine's reference zone.
type BucketKey struct {
	Aggregation string
	GroupKey    string
	Granularity Granularity
	BucketStart int64
}

func (k BucketKey) String() string {
	return fmt.Sprintf("%s/%s/%d/%s", k.Granularity, k.Aggregation, k.BucketStart, k.GroupKey)
}

// Output is one selected value of an aggregation definition, e.g.
// `avg(price) as avgPrice`. Component names the accumulator slot that backs it.
type Output struct {
	As        string `yaml:"as" json:"as"`
	Function  string `yaml:"function" json:"function"`
	Expr      string `yaml:"expr" json:"expr,omitempty"`
	Component string `yaml:"-" json:"component"`
}
