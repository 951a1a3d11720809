package nrip

import (
	"context"
	"errors"
	"fmt"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/expr"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/geoproc"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/vector"
)

// Unary adapts a one-input engine operation, e.g. Unary(eng.Slope).
func Unary(op func(ctx context.Context, input, output string) error) StepFunc {
	return func(ctx context.Context, c *api.StepContext) error {
		if len(c.Inputs) < 1 {
			return fmt.Errorf("step %s: expected 1 input, got %d", c.Step, len(c.Inputs))
		}
		return op(ctx, c.Input(0), c.Output.Path)
	}
}

// Binary adapts a two-input engine operation, e.g. Binary(eng.Intersect).
func Binary(op func(ctx context.Context, a, b, output string) error) StepFunc {
	return func(ctx context.Context, c *api.StepContext) error {
		if len(c.Inputs) < 2 {
			return fmt.Errorf("step %s: expected 2 inputs, got %d", c.Step, len(c.Inputs))
		}
		return op(ctx, c.Input(0), c.Input(1), c.Output.Path)
	}
}

// ClassifyStep evaluates cls on the first input.
func ClassifyStep(eng geoproc.Engine, cls expr.Classification) StepFunc {
	return Unary(func(ctx context.Context, input, output string) error {
		return eng.ConditionalEvaluation(ctx, input, cls, output)
	})
}

// SubtractStep computes input 0 minus input 1.
func SubtractStep(eng geoproc.Engine) StepFunc {
	return Binary(func(ctx context.Context, a, b, output string) error {
		return eng.RasterCalculator(ctx, expr.Subtract(a, b), output)
	})
}

// BufferStep grows non-background cells of the input by size.
func BufferStep(eng geoproc.Engine, size float64) StepFunc {
	return Unary(func(ctx context.Context, input, output string) error {
		return eng.BufferRaster(ctx, input, size, output)
	})
}

// GaussianStep smooths the input with the given sigma.
func GaussianStep(eng geoproc.Engine, sigma float64) StepFunc {
	return Unary(func(ctx context.Context, input, output string) error {
		return eng.GaussianFilter(ctx, input, sigma, output)
	})
}

// RasterizeStep converts the first input, of the given vector kind, to a
// raster.
func RasterizeStep(eng geoproc.Engine, kind ArtifactKind, opts geoproc.RasterizeOptions) StepFunc {
	return Unary(func(ctx context.Context, input, output string) error {
		return eng.Rasterize(ctx, kind, input, opts, output)
	})
}

// VectorizeStep converts a raster to lines or polygons.
func VectorizeStep(eng geoproc.Engine, kind ArtifactKind) StepFunc {
	if kind == api.KindLines {
		return Unary(eng.RasterToVectorLines)
	}
	return Unary(eng.RasterToVectorPolygons)
}

// ZonalStep computes stat of input 0 over the zones raster in input 1.
func ZonalStep(eng geoproc.Engine, stat geoproc.Stat) StepFunc {
	return Binary(func(ctx context.Context, input, zones, output string) error {
		return eng.ZonalStatistics(ctx, input, zones, stat, output)
	})
}

// InterpolateStep interpolates field of the points in input 0.
func InterpolateStep(eng geoproc.Engine, field string) StepFunc {
	return Unary(func(ctx context.Context, points, output string) error {
		return eng.RadialBasisFunctionInterpolation(ctx, points, field, output)
	})
}

// TableStep copies the first input through edit using the vector library.
func TableStep(lib vector.Library, edit func(*vector.Table) error) StepFunc {
	return func(ctx context.Context, c *api.StepContext) error {
		if len(c.Inputs) < 1 {
			return fmt.Errorf("step %s: expected 1 input, got %d", c.Step, len(c.Inputs))
		}
		return vector.Copy(lib, c.Input(0), c.Output.Path, edit)
	}
}

// SummarizeStep joins the polygons in input 1 onto the features in input 0
// by row, then dissolves the result by field.
func SummarizeStep(lib vector.Library, field string, agg vector.Agg) StepFunc {
	return func(ctx context.Context, c *api.StepContext) error {
		if len(c.Inputs) < 2 {
			return fmt.Errorf("step %s: expected 2 inputs, got %d", c.Step, len(c.Inputs))
		}
		features, err := lib.Read(c.Input(0))
		if err != nil {
			return err
		}
		polygons, err := lib.Read(c.Input(1))
		if err != nil {
			return err
		}
		out, err := summarize(features, polygons, field, agg)
		if err != nil {
			return api.NewExternalOperationError("vector.summarize", err, "")
		}
		return lib.Write(out, c.Output.Path)
	}
}

const (
	summaryIndex  = "Index_WBT"
	summarySuffix = "_P"
)

func summarize(features, polygons *vector.Table, field string, agg vector.Agg) (*vector.Table, error) {
	if field == "" {
		field = summaryIndex
	}
	features.AddIndexColumn(summaryIndex)
	joined := features.Join(polygons, summarySuffix)
	if err := joined.DropColumn(vector.GeometryColumn + summarySuffix); err != nil && !errors.Is(err, vector.ErrNoSuchColumn) {
		return nil, err
	}
	return joined.Dissolve(field, agg)
}
