// Package expr builds the conditional and algebraic statements handed to
// the geoprocessing engine.
//
// Conditions are validated as structured values and only rendered to the
// engine's textual syntax when Statement is called at the call boundary.
package expr

import (
	"fmt"
	"math"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/naming"
)

// Op is a comparison between a cell value and one or two thresholds.
type Op string

const (
	LE Op = "le"
	LT Op = "lt"
	GT Op = "gt"
	GE Op = "ge"

	// BetweenIncExc is low <= value < high.
	BetweenIncExc Op = "between_inclusive_exclusive"
	// BetweenExcInc is low < value <= high.
	BetweenExcInc Op = "between_exclusive_inclusive"
)

// IsRange reports whether op compares against two bounds.
func (op Op) IsRange() bool {
	return op == BetweenIncExc || op == BetweenExcInc
}

// ParseOp accepts the canonical names plus the symbolic forms
// "<=", "<", ">", ">=", "[)" and "(]".
func ParseOp(s string) (Op, error) {
	switch s {
	case string(LE), "<=":
		return LE, nil
	case string(LT), "<":
		return LT, nil
	case string(GT), ">":
		return GT, nil
	case string(GE), ">=":
		return GE, nil
	case string(BetweenIncExc), "[)":
		return BetweenIncExc, nil
	case string(BetweenExcInc), "(]":
		return BetweenExcInc, nil
	}
	return "", fmt.Errorf("unknown comparison %q", s)
}

// Condition is a validated predicate over a raster cell value.
type Condition struct {
	Op   Op
	Low  float64 // the threshold for single-sided ops
	High float64
}

// Threshold builds a single-sided condition.
func Threshold(op Op, v float64) (Condition, error) {
	if op.IsRange() {
		return Condition{}, fmt.Errorf("comparison %s needs two bounds", op)
	}
	if err := checkFinite(v); err != nil {
		return Condition{}, err
	}
	switch op {
	case LE, LT, GT, GE:
	default:
		return Condition{}, fmt.Errorf("unknown comparison %q", op)
	}
	return Condition{Op: op, Low: v}, nil
}

// Between builds a two-sided condition. low must be strictly below high;
// bounds are never swapped.
func Between(op Op, low, high float64) (Condition, error) {
	if !op.IsRange() {
		return Condition{}, fmt.Errorf("comparison %s is not a range", op)
	}
	if err := checkFinite(low); err != nil {
		return Condition{}, err
	}
	if err := checkFinite(high); err != nil {
		return Condition{}, err
	}
	if low >= high {
		return Condition{}, fmt.Errorf("%w: low %s is not below high %s",
			api.ErrInvalidThresholdRange, naming.Format(low), naming.Format(high))
	}
	return Condition{Op: op, Low: low, High: high}, nil
}

func checkFinite(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %v", api.ErrInvalidThreshold, v)
	}
	return nil
}

// Statement renders the condition in the engine's expression syntax.
func (c Condition) Statement() string {
	lo := naming.Format(c.Low)
	switch c.Op {
	case LE:
		return "value <= " + lo
	case LT:
		return "value < " + lo
	case GT:
		return "value > " + lo
	case GE:
		return "value >= " + lo
	case BetweenIncExc:
		return fmt.Sprintf("(value >= %s) && (value < %s)", lo, naming.Format(c.High))
	case BetweenExcInc:
		return fmt.Sprintf("(value > %s) && (value <= %s)", lo, naming.Format(c.High))
	}
	return ""
}

// Matches evaluates the condition against a single value.
func (c Condition) Matches(v float64) bool {
	switch c.Op {
	case LE:
		return v <= c.Low
	case LT:
		return v < c.Low
	case GT:
		return v > c.Low
	case GE:
		return v >= c.Low
	case BetweenIncExc:
		return c.Low <= v && v < c.High
	case BetweenExcInc:
		return c.Low < v && v <= c.High
	}
	return false
}

// Value is a branch outcome: a number, the cells of a raster, or no-data.
type Value struct {
	num    float64
	raster string
	nodata bool
}

// Number is a constant branch value.
func Number(v float64) Value { return Value{num: v} }

// Raster passes through the cell values of the named raster.
func Raster(name string) Value { return Value{raster: name} }

// NoData is the engine's no-data marker.
func NoData() Value { return Value{nodata: true} }

// IsNoData reports whether v is the no-data marker.
func (v Value) IsNoData() bool { return v.nodata }

// Arg renders the value as the engine expects it.
func (v Value) Arg() string {
	switch {
	case v.nodata:
		return "null"
	case v.raster != "":
		return v.raster
	}
	return naming.Format(v.num)
}

// Classification is a condition with its true and false outcomes.
type Classification struct {
	Condition Condition
	True      Value
	False     Value
}

// ClassifyOption customises a Classification.
type ClassifyOption func(*Classification)

// WithTrue sets the numeric value for matching cells, used as a hazard score.
func WithTrue(v float64) ClassifyOption {
	return func(c *Classification) { c.True = Number(v) }
}

// WithTrueRaster keeps the cell values of raster where the condition holds.
func WithTrueRaster(raster string) ClassifyOption {
	return func(c *Classification) { c.True = Raster(raster) }
}

// WithFalse fills non-matching cells with v instead of no-data.
func WithFalse(v float64) ClassifyOption {
	return func(c *Classification) { c.False = Number(v) }
}

// Classify pairs cond with outcomes: 1 where it holds, no-data elsewhere,
// unless overridden.
func Classify(cond Condition, opts ...ClassifyOption) Classification {
	c := Classification{
		Condition: cond,
		True:      Number(1),
		False:     NoData(),
	}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// Statement is the condition's engine syntax.
func (c Classification) Statement() string { return c.Condition.Statement() }

// TrueArg is the true branch's engine syntax.
func (c Classification) TrueArg() string { return c.True.Arg() }

// FalseArg is the false branch's engine syntax.
func (c Classification) FalseArg() string { return c.False.Arg() }

// String is the whole classification, for logs.
func (c Classification) String() string {
	return fmt.Sprintf("if %s then %s else %s", c.Statement(), c.TrueArg(), c.FalseArg())
}
