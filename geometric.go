package nrip

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/geoproc"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/naming"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/vector"
)

// Field written to every feature before rasterizing a surface input, so
// each feature burns the same value.
const surfaceField = "FID_wbt"

// Default Gaussian sigma per input kind.
const (
	DefaultPointSigma = 100.0
	DefaultSigma      = 10.0
)

// SurfaceOptions configures DistanceFrom and HotspotsFrom.
type SurfaceOptions struct {
	Input string

	// Kind of Input. Empty infers it from the file: rasters by extension,
	// shapefiles by their geometry type.
	Kind ArtifactKind

	// Output defaults to "<input>_distance.tif" or "<input>_hotspots.tif".
	Output string

	// CellSize of the rasterized input; zero uses the toolbox cell size.
	CellSize float64

	// Sigma of the hotspot filter; zero picks DefaultPointSigma for points
	// and DefaultSigma otherwise.
	Sigma float64
}

// DistanceFrom computes the Euclidean distance from every cell to the
// nearest input feature.
func (t *Toolbox) DistanceFrom(ctx context.Context, opts SurfaceOptions) (*Result, error) {
	b, err := t.surfaceFlow("distance", opts)
	if err != nil {
		return nil, err
	}
	return t.Run(ctx, b.Definition())
}

// HotspotsFrom smooths the rasterized input with a Gaussian filter.
func (t *Toolbox) HotspotsFrom(ctx context.Context, opts SurfaceOptions) (*Result, error) {
	b, err := t.surfaceFlow("hotspots", opts)
	if err != nil {
		return nil, err
	}
	return t.Run(ctx, b.Definition())
}

// surfaceFlow declares tag -> rasterize -> nodata_to_zero -> distance or
// hotspots. Raster inputs start at nodata_to_zero. Every intermediate is
// temporary.
func (t *Toolbox) surfaceFlow(role string, opts SurfaceOptions) (*FlowBuilder, error) {
	if opts.Input == "" {
		return nil, fmt.Errorf("nrip: %s needs an input", role)
	}
	kind, err := t.kindOf(opts.Input, opts.Kind)
	if err != nil {
		return nil, err
	}
	out := opts.Output
	if out == "" {
		out = naming.Derive(stem(opts.Input), role, api.KindRaster)
	}
	s := stem(out)

	b := Flow(role+"-from-"+kindLabel(kind)).Source("input", opts.Input, kind)
	next := "input"
	if kind.IsVector() {
		cell := opts.CellSize
		if cell == 0 {
			cell = t.cellSize
		}
		if err := checkPositive("cell size", cell); err != nil {
			return nil, err
		}
		b.Step("tag", Temporary("tagged", naming.Derive(s, "input", kind), kind),
			TableStep(t.vectors, func(tbl *vector.Table) error {
				tbl.SetColumn(surfaceField, 1)
				return nil
			}), "input").
			Step("rasterize", Temporary("rasterized", naming.Derive(s, "rasterized", api.KindRaster), api.KindRaster),
				RasterizeStep(t.engine, kind, geoproc.RasterizeOptions{Field: surfaceField, NoData: true, CellSize: cell}), "tagged")
		next = "rasterized"
	}
	b.Step("nodata_to_zero", Temporary("zeros", naming.Derive(s, "zeros", api.KindRaster), api.KindRaster),
		Unary(t.engine.ConvertNodataToZero), next)

	switch role {
	case "distance":
		b.Step("distance", Final("distance", out, api.KindRaster),
			Unary(t.engine.EuclideanDistance), "zeros")
	default:
		sigma := opts.Sigma
		if sigma == 0 {
			sigma = DefaultSigma
			if kind == api.KindPoints {
				sigma = DefaultPointSigma
			}
		}
		if err := checkPositive("sigma", sigma); err != nil {
			return nil, err
		}
		b.Step("hotspots", Final("hotspots", out, api.KindRaster),
			GaussianStep(t.engine, sigma), "zeros")
	}
	return b, nil
}

// ZonalOptions configures ZonalStatistics.
type ZonalOptions struct {
	// Raster holds the values summarised per zone.
	Raster string

	// Zones is a polygon shapefile or a raster of zone ids.
	Zones     string
	ZonesKind ArtifactKind

	// Output defaults to "<raster>_zonal_<stat>.tif".
	Output string

	// Field receives the row index of each polygon zone; defaults to "FID".
	Field string

	// Stat defaults to mean.
	Stat Stat
}

// ZonalStatisticsFlow declares the zonal statistics chain. Polygon zones
// are numbered and rasterized onto the grid of Raster first; raster zones
// are used as they are.
func (t *Toolbox) ZonalStatisticsFlow(opts ZonalOptions) (*FlowBuilder, error) {
	if opts.Raster == "" || opts.Zones == "" {
		return nil, errors.New("nrip: zonal statistics need a raster and zones")
	}
	kind, err := t.kindOf(opts.Zones, opts.ZonesKind)
	if err != nil {
		return nil, err
	}
	if kind != api.KindRaster && kind != api.KindPolygons {
		return nil, fmt.Errorf("%w: zones must be polygons or a raster, got %s", api.ErrUnknownKind, kind)
	}
	stat := opts.Stat
	if stat == "" {
		stat = geoproc.StatMean
	}
	field := opts.Field
	if field == "" {
		field = "FID"
	}
	out := opts.Output
	if out == "" {
		out = naming.Derive(stem(opts.Raster), "zonal", api.KindRaster, strings.ReplaceAll(string(stat), " ", "_"))
	}
	s := stem(out)

	b := Flow("zonal-statistics").
		Source("raster", opts.Raster, api.KindRaster).
		Source("zones", opts.Zones, kind)
	zones := "zones"
	if kind == api.KindPolygons {
		b.Step("index_zones", Temporary("indexed_zones", naming.Derive(s, "zones", api.KindPolygons), api.KindPolygons),
			TableStep(t.vectors, func(tbl *vector.Table) error {
				tbl.AddIndexColumn(field)
				return nil
			}), "zones").
			Step("rasterize_zones", Temporary("zones_raster", naming.Derive(s, "zones", api.KindRaster), api.KindRaster),
				RasterizeStep(t.engine, api.KindPolygons, geoproc.RasterizeOptions{Field: field, Base: opts.Raster}), "indexed_zones")
		zones = "zones_raster"
	}
	b.Step("zonal_statistics", Final("zonal", out, api.KindRaster),
		ZonalStep(t.engine, stat), "raster", zones)
	return b, nil
}

// ZonalStatistics summarises Raster per zone.
func (t *Toolbox) ZonalStatistics(ctx context.Context, opts ZonalOptions) (*Result, error) {
	b, err := t.ZonalStatisticsFlow(opts)
	if err != nil {
		return nil, err
	}
	return t.Run(ctx, b.Definition())
}

// Intersect keeps the parts of input covered by overlay.
func (t *Toolbox) Intersect(ctx context.Context, input, overlay, output string) (*Result, error) {
	if input == "" || overlay == "" || output == "" {
		return nil, errors.New("nrip: intersect needs input, overlay and output")
	}
	inKind, err := naming.KindFromPath(input)
	if err != nil {
		return nil, err
	}
	overKind, err := naming.KindFromPath(overlay)
	if err != nil {
		return nil, err
	}
	b := Flow("intersect").
		Source("input", input, inKind).
		Source("overlay", overlay, overKind).
		Step("intersect", Final("intersection", output, inKind),
			Binary(t.engine.Intersect), "input", "overlay")
	return t.Run(ctx, b.Definition())
}

// InterpolatePoints builds a raster surface from field of the points.
func (t *Toolbox) InterpolatePoints(ctx context.Context, points, field, output string) (*Result, error) {
	if points == "" || field == "" || output == "" {
		return nil, errors.New("nrip: interpolation needs points, a field and an output")
	}
	b := Flow("interpolate-points").
		Source("points", points, api.KindPoints).
		Step("interpolate", Final("surface", output, api.KindRaster),
			InterpolateStep(t.engine, field), "points")
	return t.Run(ctx, b.Definition())
}

// SummarizeOptions configures SummarizeWithin.
type SummarizeOptions struct {
	// Input features, of any geometry.
	Input string
	// Polygons are joined onto Input by row.
	Polygons string
	Output   string

	// Field to dissolve by; defaults to the row index of Input.
	Field string
	// Agg combines numeric columns; defaults to mean.
	Agg Agg
}

// SummarizeWithin joins Polygons onto Input and dissolves the joined table
// by Field, writing the dissolved table to Output.
func (t *Toolbox) SummarizeWithin(ctx context.Context, opts SummarizeOptions) (*Result, error) {
	if opts.Input == "" || opts.Polygons == "" || opts.Output == "" {
		return nil, errors.New("nrip: summarize within needs input, polygons and output")
	}
	agg := opts.Agg
	if agg == "" {
		agg = vector.AggMean
	}
	inKind, err := naming.KindFromPath(opts.Input)
	if err != nil {
		return nil, err
	}
	b := Flow("summarize-within").
		Source("input", opts.Input, inKind).
		Source("polygons", opts.Polygons, api.KindPolygons).
		Step("summarize", Final("summary", opts.Output, api.KindPolygons),
			SummarizeStep(t.vectors, opts.Field, agg), "input", "polygons")
	return t.Run(ctx, b.Definition())
}

// kindOf returns kind when set, otherwise infers it from path. Shapefiles
// are opened to read their geometry type.
func (t *Toolbox) kindOf(path string, kind ArtifactKind) (ArtifactKind, error) {
	if kind != "" {
		return api.ParseKind(string(kind))
	}
	k, err := naming.KindFromPath(path)
	if err != nil || !k.IsVector() {
		return k, err
	}
	tbl, err := t.vectors.Read(t.session.Resolve(path))
	if err != nil {
		return "", err
	}
	return vector.Kind(tbl.Type)
}

func kindLabel(k ArtifactKind) string {
	switch k {
	case api.KindPoints:
		return "points"
	case api.KindLines:
		return "lines"
	case api.KindPolygons:
		return "polygons"
	}
	return "raster"
}

// stem is the file name of path without directory or extension.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
