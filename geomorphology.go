package nrip

import (
	"context"
	"errors"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/expr"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/naming"
)

// FloodHazardOptions configures FloodHazardAreas.
type FloodHazardOptions struct {
	DEM    string
	Prefix string

	// BufferDistance grows the stream network by this many cells.
	BufferDistance float64

	// FlowAccumulationThreshold defaults to DefaultFlowAccumulationThreshold.
	FlowAccumulationThreshold float64

	KeepTemporaries bool
	Retain          []string
}

// FloodHazardAreasFlow declares fill -> fdir -> facc -> streams -> buffer ->
// polygons. Only the polygons survive by default.
func (t *Toolbox) FloodHazardAreasFlow(opts FloodHazardOptions) (*FlowBuilder, error) {
	if opts.DEM == "" {
		return nil, errors.New("nrip: flood hazard areas need a DEM")
	}
	if err := checkPositive("buffer distance", opts.BufferDistance); err != nil {
		return nil, err
	}
	threshold, tag := flowThreshold(opts.FlowAccumulationThreshold)
	streams, err := expr.Threshold(expr.GE, threshold)
	if err != nil {
		return nil, err
	}

	p := opts.Prefix
	eng := t.engine
	raster := func(role string, q ...any) string { return naming.Derive(p, role, api.KindRaster, q...) }

	b := Flow("flood-hazard-areas").
		Source("dem", opts.DEM, api.KindRaster).
		Step("fill", Temporary("fill", raster("fill"), api.KindRaster),
			Unary(eng.FillDepressions), "dem").
		Step("fdir", Temporary("fdir", raster("fdir"), api.KindRaster),
			Unary(eng.D8Pointer), "fill").
		Step("facc", Temporary("facc", raster("facc"), api.KindRaster),
			Unary(eng.D8FlowAccumulation), "fdir").
		Step("facc_setnull", Temporary("facc_setnull", raster("facc_setnull", tag), api.KindRaster),
			ClassifyStep(eng, expr.Classify(streams)), "facc").
		Step("facc_setnull_buffer", Temporary("facc_setnull_buffer", raster("facc_setnull_buffer", opts.BufferDistance), api.KindRaster),
			BufferStep(eng, opts.BufferDistance), "facc_setnull").
		Step("flood_hazard_areas", Final("flood_hazard_areas", naming.Derive(p, "flood_hazard_areas", api.KindPolygons), api.KindPolygons),
			VectorizeStep(eng, api.KindPolygons), "facc_setnull_buffer").
		Retain(opts.Retain...).
		KeepTemporaries(opts.KeepTemporaries)
	return b, nil
}

// FloodHazardAreas delineates fluvial flood hazard polygons around the
// stream network of a DEM.
func (t *Toolbox) FloodHazardAreas(ctx context.Context, opts FloodHazardOptions) (*Result, error) {
	b, err := t.FloodHazardAreasFlow(opts)
	if err != nil {
		return nil, err
	}
	return t.Run(ctx, b.Definition())
}

// SteepAreaOptions configures SteepAreas.
type SteepAreaOptions struct {
	DEM    string
	Prefix string

	// Threshold is the slope in degrees above which a cell is steep.
	Threshold float64

	KeepTemporaries bool
}

// SteepAreas masks cells whose slope exceeds Threshold and vectorizes the
// mask. The mask raster and its polygons both survive; the slope raster is
// temporary.
func (t *Toolbox) SteepAreas(ctx context.Context, opts SteepAreaOptions) (*Result, error) {
	if opts.DEM == "" {
		return nil, errors.New("nrip: steep areas need a DEM")
	}
	steep, err := expr.Threshold(expr.GT, opts.Threshold)
	if err != nil {
		return nil, err
	}

	p := opts.Prefix
	eng := t.engine

	b := Flow("steep-areas").
		Source("dem", opts.DEM, api.KindRaster).
		Step("slope", Temporary("slope", naming.Derive(p, "slope", api.KindRaster), api.KindRaster),
			Unary(eng.Slope), "dem").
		Step("slope_setnull", Final("slope_setnull", naming.Derive(p, "slope_setnull", api.KindRaster), api.KindRaster),
			ClassifyStep(eng, expr.Classify(steep)), "slope").
		Step("slope_setnull_polygon", Final("slope_setnull_polygon", naming.Derive(p, "slope_setnull", api.KindPolygons), api.KindPolygons),
			VectorizeStep(eng, api.KindPolygons), "slope_setnull").
		KeepTemporaries(opts.KeepTemporaries)
	return t.Run(ctx, b.Definition())
}
