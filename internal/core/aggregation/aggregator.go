package aggregation

// Operator defines how an aggregate function is fed and read.
// To add a new function: implement this interface and register it in Operators.
type Operator interface {
	// Summable reports whether the function reads the component's sum/count
	// state. Functions that return false read the last value instead.
	Summable() bool

	// Read derives the output value from a component state. It returns nil
	// when the state carries nothing for this function.
	Read(c ComponentState) interface{}
}

// Operators is the registry of all supported aggregate functions.
var Operators = map[string]Operator{
	FuncSum:   sumOp{},
	FuncAvg:   avgOp{},
	FuncCount: countOp{},
	FuncLast:  lastOp{},
}

// ValidFunction reports whether fn is a registered aggregate function.
func ValidFunction(fn string) bool {
	_, ok := Operators[fn]
	return ok
}

type sumOp struct{}

func (sumOp) Summable() bool { return true }
func (sumOp) Read(c ComponentState) interface{} {
	if c.Count == 0 {
		return nil
	}
	return c.Sum
}

// avgOp is never stored; it divides on read.
type avgOp struct{}

func (avgOp) Summable() bool { return true }
func (avgOp) Read(c ComponentState) interface{} {
	avg, ok := c.Avg()
	if !ok {
		return nil
	}
	return avg
}

type countOp struct{}

func (countOp) Summable() bool                     { return true }
func (countOp) Read(c ComponentState) interface{} { return c.Count }

type lastOp struct{}

func (lastOp) Summable() bool { return false }
func (lastOp) Read(c ComponentState) interface{} {
	if !c.HasLast {
		return nil
	}
	return c.Last
}
