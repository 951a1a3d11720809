package nrip

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/expr"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/naming"
)

// DefaultFlowAccumulationThreshold is the number of upslope cells a cell
// needs to count as part of a stream.
const DefaultFlowAccumulationThreshold = 1000.0

// flowThreshold resolves the stream threshold and the qualifier used in
// artifact names. The default qualifies names as a plain integer.
func flowThreshold(v float64) (float64, any) {
	if v == 0 {
		return DefaultFlowAccumulationThreshold, int(DefaultFlowAccumulationThreshold)
	}
	return v, v
}

// HydrologyOptions configures HydrologicalRouting.
type HydrologyOptions struct {
	// DEM is the elevation raster, relative to the working directory or
	// absolute.
	DEM string

	// Prefix starts every output name, e.g. "site1".
	Prefix string

	// FlowAccumulationThreshold defaults to DefaultFlowAccumulationThreshold.
	FlowAccumulationThreshold float64

	// KeepTemporaries leaves the fill, flow and basin rasters on disk.
	KeepTemporaries bool

	// Retain keeps individual temporaries by logical name.
	Retain []string
}

// HydrologicalRoutingFlow declares the hydrological routing chain:
//
//	fill -> fdir -> facc -> facc_setnull -> flow lines
//	        fdir -> basins -> basin polygons
//	fill - dem -> fill_depth -> fill_extent -> sink polygons
//
// fill and fdir are produced once and consumed by every branch.
func (t *Toolbox) HydrologicalRoutingFlow(opts HydrologyOptions) (*FlowBuilder, error) {
	if opts.DEM == "" {
		return nil, errors.New("nrip: hydrological routing needs a DEM")
	}
	threshold, tag := flowThreshold(opts.FlowAccumulationThreshold)
	streams, err := expr.Threshold(expr.GE, threshold)
	if err != nil {
		return nil, err
	}
	sinks, err := expr.Threshold(expr.GT, 0)
	if err != nil {
		return nil, err
	}

	p := opts.Prefix
	eng := t.engine
	raster := func(role string, q ...any) string { return naming.Derive(p, role, api.KindRaster, q...) }
	shape := func(role string, q ...any) string { return naming.Derive(p, role, api.KindPolygons, q...) }

	b := Flow("hydrological-routing").
		Source("dem", opts.DEM, api.KindRaster).
		Step("fill", Temporary("fill", raster("fill"), api.KindRaster),
			Unary(eng.FillDepressions), "dem").
		Step("fdir", Temporary("fdir", raster("fdir"), api.KindRaster),
			Unary(eng.D8Pointer), "fill").
		Step("facc", Temporary("facc", raster("facc"), api.KindRaster),
			Unary(eng.D8FlowAccumulation), "fdir").
		StepWithParams("facc_setnull", Temporary("facc_setnull", raster("facc_setnull", tag), api.KindRaster),
			ClassifyStep(eng, expr.Classify(streams)), map[string]any{"threshold": threshold}, "facc").
		Step("facc_setnull_lines", Final("facc_setnull_lines", shape("facc_setnull_polygon", tag), api.KindLines),
			VectorizeStep(eng, api.KindLines), "facc_setnull").
		Step("basins", Temporary("basins", raster("basins"), api.KindRaster),
			Unary(eng.Basins), "fdir").
		Step("basins_polygon", Final("basins_polygon", shape("basins_polygon"), api.KindPolygons),
			VectorizeStep(eng, api.KindPolygons), "basins").
		Step("fill_depth", Final("fill_depth", raster("fill_depth"), api.KindRaster),
			SubtractStep(eng), "fill", "dem").
		Step("fill_extent", Temporary("fill_extent", raster("fill_extent"), api.KindRaster),
			ClassifyStep(eng, expr.Classify(sinks)), "fill_depth").
		Step("fill_extent_polygon", Final("fill_extent_polygon", shape("fill_extent_polygon"), api.KindPolygons),
			VectorizeStep(eng, api.KindPolygons), "fill_extent").
		Retain(opts.Retain...).
		KeepTemporaries(opts.KeepTemporaries)
	return b, nil
}

// HydrologicalRouting derives flow lines, drainage basins and sinks from a
// DEM. Surviving outputs are facc_setnull_lines, basins_polygon,
// fill_depth and fill_extent_polygon.
func (t *Toolbox) HydrologicalRouting(ctx context.Context, opts HydrologyOptions) (*Result, error) {
	b, err := t.HydrologicalRoutingFlow(opts)
	if err != nil {
		return nil, err
	}
	return t.Run(ctx, b.Definition())
}

// ClipOptions configures ClipByElevation.
type ClipOptions struct {
	DEM string
	// Output defaults to "<dem>_clipped.tif".
	Output string
}

// ClipByElevation keeps DEM cells above sea level and sets the rest to
// no-data.
func (t *Toolbox) ClipByElevation(ctx context.Context, opts ClipOptions) (*Result, error) {
	if opts.DEM == "" {
		return nil, errors.New("nrip: clip by elevation needs a DEM")
	}
	out := opts.Output
	if out == "" {
		out = naming.Derive(stem(opts.DEM), "clipped", api.KindRaster)
	}
	above, err := expr.Threshold(expr.GT, 0)
	if err != nil {
		return nil, err
	}

	b := Flow("clip-by-elevation").
		Source("dem", opts.DEM, api.KindRaster).
		Step("clip", Final("clipped", out, api.KindRaster),
			ClassifyStep(t.engine, expr.Classify(above, expr.WithTrueRaster(opts.DEM))), "dem")
	return t.Run(ctx, b.Definition())
}

// checkPositive rejects zero, negative and non-finite distances.
func checkPositive(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("nrip: %s must be a positive number, got %v", name, v)
	}
	return nil
}
