package nrip

import (
	"context"
	"errors"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/expr"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/naming"
)

// Logical names of the inundation outputs.
const (
	InundationRaster   = "extents"
	InundationPolygons = "extents_polygons"
)

// InundationOutputs picks what an inundation run leaves on disk. The zero
// value keeps the raster only.
type InundationOutputs struct {
	// DropRaster deletes the classified raster once it is no longer needed.
	DropRaster bool
	// Polygons vectorizes the classified raster.
	Polygons bool
	// Value is written to flooded cells; zero means 1.
	Value float64
}

// InundationOptions configures InundationExtents.
type InundationOptions struct {
	Raster    string
	Threshold float64

	// OutputName is the output file name without extension; it defaults to
	// "inundation_extents_<threshold>".
	OutputName string

	InundationOutputs
}

// InundationRangeOptions configures InundationExtentsBetween.
type InundationRangeOptions struct {
	Raster string
	Low    float64
	High   float64

	// Op is BetweenExcInc (low < v <= high) unless set to BetweenIncExc.
	Op Op

	// OutputName defaults to "inundation_extents_between_<low>_and_<high>".
	OutputName string

	InundationOutputs
}

// InundationExtents marks cells at or below Threshold.
func (t *Toolbox) InundationExtents(ctx context.Context, opts InundationOptions) (*Result, error) {
	cond, err := expr.Threshold(expr.LE, opts.Threshold)
	if err != nil {
		return nil, err
	}
	name := opts.OutputName
	if name == "" {
		name = naming.Base("inundation_extents", "", opts.Threshold)
	}
	b, err := t.inundationFlow("inundation-extents", opts.Raster, name, cond, opts.InundationOutputs)
	if err != nil {
		return nil, err
	}
	return t.Run(ctx, b.Definition())
}

// InundationExtentsBetween marks cells between Low and High.
func (t *Toolbox) InundationExtentsBetween(ctx context.Context, opts InundationRangeOptions) (*Result, error) {
	op := opts.Op
	if op == "" {
		op = expr.BetweenExcInc
	}
	cond, err := expr.Between(op, opts.Low, opts.High)
	if err != nil {
		return nil, err
	}
	name := opts.OutputName
	if name == "" {
		name = naming.Base("inundation_extents_between", "", opts.Low, "and", opts.High)
	}
	b, err := t.inundationFlow("inundation-extents-between", opts.Raster, name, cond, opts.InundationOutputs)
	if err != nil {
		return nil, err
	}
	return t.Run(ctx, b.Definition())
}

func (t *Toolbox) inundationFlow(workflow, input, name string, cond expr.Condition, out InundationOutputs) (*FlowBuilder, error) {
	if input == "" {
		return nil, errors.New("nrip: inundation needs an input raster")
	}
	value := out.Value
	if value == 0 {
		value = 1
	}

	b := Flow(workflow).
		Source("input", input, api.KindRaster).
		Step("classify", Output(InundationRaster, naming.WithExtension(name, api.KindRaster), api.KindRaster, !out.DropRaster),
			ClassifyStep(t.engine, expr.Classify(cond, expr.WithTrue(value))), "input")
	if out.Polygons {
		b.Step("vectorize", Final(InundationPolygons, naming.WithExtension(name, api.KindPolygons), api.KindPolygons),
			VectorizeStep(t.engine, api.KindPolygons), InundationRaster)
	}
	return b, nil
}
