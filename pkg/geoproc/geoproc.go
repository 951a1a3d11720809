// Package geoproc declares the raster and vector operations workflows call
// on an external geoprocessing engine.
//
// File names are resolved against the engine working directory. Every
// operation writes exactly one output and reports failures as
// *api.ExternalOperationError.
package geoproc

import (
	"context"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/expr"
)

// DefaultCellSize is the grid resolution used when rasterizing vectors.
const DefaultCellSize = 100.0

// Stat is a zonal statistic.
type Stat string

const (
	StatMean   Stat = "mean"
	StatMedian Stat = "median"
	StatMin    Stat = "minimum"
	StatMax    Stat = "maximum"
	StatRange  Stat = "range"
	StatStdDev Stat = "standard deviation"
	StatTotal  Stat = "total"
)

// ParseStat accepts the engine's statistic names plus "min", "max", "sum"
// and "std".
func ParseStat(s string) (Stat, bool) {
	switch s {
	case "", "mean":
		return StatMean, true
	case "median":
		return StatMedian, true
	case "min", "minimum":
		return StatMin, true
	case "max", "maximum":
		return StatMax, true
	case "range":
		return StatRange, true
	case "std", "standard deviation":
		return StatStdDev, true
	case "sum", "total":
		return StatTotal, true
	}
	return "", false
}

// RasterizeOptions controls vector to raster conversion.
type RasterizeOptions struct {
	// Field holds the burned cell value; empty burns the feature id.
	Field string
	// Assign picks the value where features overlap (polygons only).
	Assign string
	// NoData fills background cells with no-data instead of zero.
	NoData bool
	// CellSize is the output resolution; ignored when Base is set.
	CellSize float64
	// Base is an existing raster whose grid the output aligns to.
	Base string
}

// Engine is the geoprocessing engine contract.
type Engine interface {
	WorkingDir() string
	SetWorkingDir(dir string) error
	SetVerbose(verbose bool)

	FillDepressions(ctx context.Context, dem, output string) error
	D8Pointer(ctx context.Context, dem, output string) error
	D8FlowAccumulation(ctx context.Context, pointer, output string) error
	Basins(ctx context.Context, pointer, output string) error
	Slope(ctx context.Context, dem, output string) error

	RasterCalculator(ctx context.Context, a expr.Algebra, output string) error
	ConditionalEvaluation(ctx context.Context, input string, c expr.Classification, output string) error
	BufferRaster(ctx context.Context, input string, size float64, output string) error
	ConvertNodataToZero(ctx context.Context, input, output string) error
	EuclideanDistance(ctx context.Context, input, output string) error
	GaussianFilter(ctx context.Context, input string, sigma float64, output string) error

	Rasterize(ctx context.Context, kind api.ArtifactKind, input string, opts RasterizeOptions, output string) error
	RasterToVectorLines(ctx context.Context, input, output string) error
	RasterToVectorPolygons(ctx context.Context, input, output string) error

	ZonalStatistics(ctx context.Context, input, features string, stat Stat, output string) error
	RadialBasisFunctionInterpolation(ctx context.Context, points, field, output string) error
	Intersect(ctx context.Context, input, overlay, output string) error
}
