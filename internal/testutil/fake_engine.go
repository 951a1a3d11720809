// Package testutil provides a geoprocessing engine double for tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/expr"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/geoproc"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/naming"
)

// Call records one engine invocation.
type Call struct {
	Tool   string
	Inputs []string
	Output string
	Args   map[string]string

	// Cwd and EngineDir are the process and engine directories observed
	// when the call was made.
	Cwd       string
	EngineDir string
}

// FakeEngine implements geoproc.Engine by writing placeholder files.
//
// Fail makes the named tool return an error. DriftTo, when set, moves both
// the process and the engine into that directory after every call, the way
// a misbehaving tool might.
type FakeEngine struct {
	mu      sync.Mutex
	wd      string
	verbose bool
	calls   []Call

	Fail    map[string]error
	DriftTo string
}

var _ geoproc.Engine = (*FakeEngine)(nil)

// NewFakeEngine returns an engine with no working directory set.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{Fail: map[string]error{}}
}

func (f *FakeEngine) WorkingDir() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wd
}

func (f *FakeEngine) SetWorkingDir(dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wd = dir
	return nil
}

func (f *FakeEngine) SetVerbose(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verbose = v
}

// Verbose reports the last verbose flag set.
func (f *FakeEngine) Verbose() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verbose
}

// Calls returns a copy of the recorded calls.
func (f *FakeEngine) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Tools returns the tool names called, in order.
func (f *FakeEngine) Tools() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, c.Tool)
	}
	return out
}

// Count returns how often tool was called.
func (f *FakeEngine) Count(tool string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Tool == tool {
			n++
		}
	}
	return n
}

// Last returns the most recent call of tool.
func (f *FakeEngine) Last(tool string) (Call, bool) {
	calls := f.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Tool == tool {
			return calls[i], true
		}
	}
	return Call{}, false
}

func (f *FakeEngine) run(ctx context.Context, tool string, inputs []string, output string, args map[string]string) error {
	if err := ctx.Err(); err != nil {
		return api.NewExternalOperationError(tool, err, "")
	}
	cwd, _ := os.Getwd()

	f.mu.Lock()
	f.calls = append(f.calls, Call{
		Tool:      tool,
		Inputs:    inputs,
		Output:    output,
		Args:      args,
		Cwd:       cwd,
		EngineDir: f.wd,
	})
	wd := f.wd
	failErr := f.Fail[tool]
	drift := f.DriftTo
	f.mu.Unlock()

	defer func() {
		if drift == "" {
			return
		}
		_ = os.Chdir(drift)
		f.mu.Lock()
		f.wd = drift
		f.mu.Unlock()
	}()

	if failErr != nil {
		return api.NewExternalOperationError(tool, failErr, "simulated failure")
	}

	path := output
	if !filepath.IsAbs(path) {
		path = filepath.Join(wd, output)
	}
	for _, p := range naming.Sidecars(path) {
		if strings.HasSuffix(p, ".prj") || strings.HasSuffix(p, ".cpg") {
			continue
		}
		if err := os.WriteFile(p, []byte(tool), 0o644); err != nil {
			return api.NewExternalOperationError(tool, err, "")
		}
	}
	return nil
}

func num(v float64) string { return naming.Format(v) }

func (f *FakeEngine) FillDepressions(ctx context.Context, dem, output string) error {
	return f.run(ctx, "FillDepressionsPlanchonAndDarboux", []string{dem}, output, nil)
}

func (f *FakeEngine) D8Pointer(ctx context.Context, dem, output string) error {
	return f.run(ctx, "D8Pointer", []string{dem}, output, nil)
}

func (f *FakeEngine) D8FlowAccumulation(ctx context.Context, pointer, output string) error {
	return f.run(ctx, "D8FlowAccumulation", []string{pointer}, output, nil)
}

func (f *FakeEngine) Basins(ctx context.Context, pointer, output string) error {
	return f.run(ctx, "Basins", []string{pointer}, output, nil)
}

func (f *FakeEngine) Slope(ctx context.Context, dem, output string) error {
	return f.run(ctx, "Slope", []string{dem}, output, nil)
}

func (f *FakeEngine) RasterCalculator(ctx context.Context, a expr.Algebra, output string) error {
	return f.run(ctx, "RasterCalculator", []string{a.Left, a.Right}, output,
		map[string]string{"statement": a.Statement()})
}

func (f *FakeEngine) ConditionalEvaluation(ctx context.Context, input string, c expr.Classification, output string) error {
	return f.run(ctx, "ConditionalEvaluation", []string{input}, output, map[string]string{
		"statement": c.Statement(),
		"true":      c.TrueArg(),
		"false":     c.FalseArg(),
	})
}

func (f *FakeEngine) BufferRaster(ctx context.Context, input string, size float64, output string) error {
	return f.run(ctx, "BufferRaster", []string{input}, output, map[string]string{"size": num(size)})
}

func (f *FakeEngine) ConvertNodataToZero(ctx context.Context, input, output string) error {
	return f.run(ctx, "ConvertNodataToZero", []string{input}, output, nil)
}

func (f *FakeEngine) EuclideanDistance(ctx context.Context, input, output string) error {
	return f.run(ctx, "EuclideanDistance", []string{input}, output, nil)
}

func (f *FakeEngine) GaussianFilter(ctx context.Context, input string, sigma float64, output string) error {
	return f.run(ctx, "GaussianFilter", []string{input}, output, map[string]string{"sigma": num(sigma)})
}

func (f *FakeEngine) Rasterize(ctx context.Context, kind api.ArtifactKind, input string, opts geoproc.RasterizeOptions, output string) error {
	tool := map[api.ArtifactKind]string{
		api.KindPoints:   "VectorPointsToRaster",
		api.KindLines:    "VectorLinesToRaster",
		api.KindPolygons: "VectorPolygonsToRaster",
	}[kind]
	if tool == "" {
		return fmt.Errorf("%w: cannot rasterize %s", api.ErrUnknownKind, kind)
	}
	return f.run(ctx, tool, []string{input}, output, map[string]string{
		"field":     opts.Field,
		"nodata":    fmt.Sprint(opts.NoData),
		"cell_size": num(opts.CellSize),
		"base":      opts.Base,
	})
}

func (f *FakeEngine) RasterToVectorLines(ctx context.Context, input, output string) error {
	return f.run(ctx, "RasterToVectorLines", []string{input}, output, nil)
}

func (f *FakeEngine) RasterToVectorPolygons(ctx context.Context, input, output string) error {
	return f.run(ctx, "RasterToVectorPolygons", []string{input}, output, nil)
}

func (f *FakeEngine) ZonalStatistics(ctx context.Context, input, features string, stat geoproc.Stat, output string) error {
	return f.run(ctx, "ZonalStatistics", []string{input, features}, output, map[string]string{"stat": string(stat)})
}

func (f *FakeEngine) RadialBasisFunctionInterpolation(ctx context.Context, points, field, output string) error {
	return f.run(ctx, "RadialBasisFunctionInterpolation", []string{points}, output, map[string]string{"field": field})
}

func (f *FakeEngine) Intersect(ctx context.Context, input, overlay, output string) error {
	return f.run(ctx, "Intersect", []string{input, overlay}, output, nil)
}
