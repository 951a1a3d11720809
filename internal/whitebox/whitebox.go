// Package whitebox drives the WhiteboxTools command line as a
// geoproc.Engine.
//
// Every operation runs
//
//	whitebox_tools --run=<Tool> --wd=<dir> --<flag>=<value> ... [-v]
//
// with the process started in the engine working directory.
package whitebox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/expr"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/geoproc"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/naming"
)

// DefaultBinary is looked up on PATH when no binary is configured.
const DefaultBinary = "whitebox_tools"

// Option configures a Client.
type Option func(*Client)

// WithBinary sets the engine executable instead of searching PATH.
func WithBinary(path string) Option {
	return func(c *Client) { c.bin = path }
}

// WithLogger sets the logger tool output is forwarded to.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCellSize sets the output resolution for interpolation.
func WithCellSize(size float64) Option {
	return func(c *Client) { c.cellSize = size }
}

// Client implements geoproc.Engine over the WhiteboxTools binary.
type Client struct {
	mu       sync.Mutex
	bin      string
	wd       string
	verbose  bool
	cellSize float64
	logger   *slog.Logger
	run      runFunc
}

var _ geoproc.Engine = (*Client)(nil)

// New locates the binary and returns a client with no working directory.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		cellSize: geoproc.DefaultCellSize,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.bin == "" {
		bin, err := BinaryPath(DefaultBinary)
		if err != nil {
			return nil, err
		}
		c.bin = bin
	}
	c.logger = c.logger.With("component", "whitebox")
	if c.run == nil {
		c.run = execRunner(c.logger)
	}
	return c, nil
}

func (c *Client) WorkingDir() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wd
}

func (c *Client) SetWorkingDir(dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wd = dir
	return nil
}

func (c *Client) SetVerbose(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verbose = v
}

// flag is one --name=value argument; an empty value renders a bare switch.
type flag struct {
	name  string
	value string
}

func f(name, value string) flag { return flag{name, value} }

func on(name string) flag { return flag{name: name} }

// args renders the command line for tool.
func (c *Client) args(tool string, flags ...flag) []string {
	c.mu.Lock()
	wd, verbose := c.wd, c.verbose
	c.mu.Unlock()

	out := make([]string, 0, len(flags)+3)
	out = append(out, "--run="+tool)
	if wd != "" {
		out = append(out, "--wd="+wd)
	}
	for _, fl := range flags {
		if fl.value == "" {
			out = append(out, "--"+fl.name)
			continue
		}
		out = append(out, fmt.Sprintf("--%s=%s", fl.name, fl.value))
	}
	if verbose {
		out = append(out, "-v")
	}
	return out
}

func (c *Client) exec(ctx context.Context, tool string, flags ...flag) error {
	args := c.args(tool, flags...)
	c.logger.DebugContext(ctx, "running tool", slog.String("tool", tool), slog.String("args", strings.Join(args, " ")))

	output, err := c.run(ctx, c.bin, c.WorkingDir(), args)
	if err != nil {
		return api.NewExternalOperationError(tool, err, output)
	}
	return nil
}

func num(v float64) string { return naming.Format(v) }

func (c *Client) FillDepressions(ctx context.Context, dem, output string) error {
	return c.exec(ctx, "FillDepressionsPlanchonAndDarboux", f("dem", dem), f("output", output))
}

func (c *Client) D8Pointer(ctx context.Context, dem, output string) error {
	return c.exec(ctx, "D8Pointer", f("dem", dem), f("output", output), on("esri_pntr"))
}

func (c *Client) D8FlowAccumulation(ctx context.Context, pointer, output string) error {
	return c.exec(ctx, "D8FlowAccumulation",
		f("input", pointer), f("output", output), f("out_type", "cells"), on("pntr"), on("esri_pntr"))
}

func (c *Client) Basins(ctx context.Context, pointer, output string) error {
	return c.exec(ctx, "Basins", f("d8_pntr", pointer), f("output", output), on("esri_pntr"))
}

func (c *Client) Slope(ctx context.Context, dem, output string) error {
	return c.exec(ctx, "Slope", f("dem", dem), f("output", output))
}

func (c *Client) RasterCalculator(ctx context.Context, a expr.Algebra, output string) error {
	return c.exec(ctx, "RasterCalculator", f("statement", a.Statement()), f("output", output))
}

func (c *Client) ConditionalEvaluation(ctx context.Context, input string, cl expr.Classification, output string) error {
	return c.exec(ctx, "ConditionalEvaluation",
		f("input", input),
		f("output", output),
		f("statement", cl.Statement()),
		f("true", cl.TrueArg()),
		f("false", cl.FalseArg()),
	)
}

func (c *Client) BufferRaster(ctx context.Context, input string, size float64, output string) error {
	return c.exec(ctx, "BufferRaster", f("input", input), f("output", output), f("size", num(size)))
}

func (c *Client) ConvertNodataToZero(ctx context.Context, input, output string) error {
	return c.exec(ctx, "ConvertNodataToZero", f("input", input), f("output", output))
}

func (c *Client) EuclideanDistance(ctx context.Context, input, output string) error {
	return c.exec(ctx, "EuclideanDistance", f("input", input), f("output", output))
}

func (c *Client) GaussianFilter(ctx context.Context, input string, sigma float64, output string) error {
	return c.exec(ctx, "GaussianFilter", f("input", input), f("output", output), f("sigma", num(sigma)))
}

var rasterizeTools = map[api.ArtifactKind]string{
	api.KindPoints:   "VectorPointsToRaster",
	api.KindLines:    "VectorLinesToRaster",
	api.KindPolygons: "VectorPolygonsToRaster",
}

func (c *Client) Rasterize(ctx context.Context, kind api.ArtifactKind, input string, opts geoproc.RasterizeOptions, output string) error {
	tool, ok := rasterizeTools[kind]
	if !ok {
		return fmt.Errorf("%w: cannot rasterize %s", api.ErrUnknownKind, kind)
	}
	field := opts.Field
	if field == "" {
		field = "FID"
	}
	flags := []flag{f("input", input), f("field", field), f("output", output)}
	if kind == api.KindPoints {
		assign := opts.Assign
		if assign == "" {
			assign = "last"
		}
		flags = append(flags, f("assign", assign))
	}
	if opts.NoData {
		flags = append(flags, on("nodata"))
	}
	switch {
	case opts.Base != "":
		flags = append(flags, f("base", opts.Base))
	case opts.CellSize > 0:
		flags = append(flags, f("cell_size", num(opts.CellSize)))
	}
	return c.exec(ctx, tool, flags...)
}

func (c *Client) RasterToVectorLines(ctx context.Context, input, output string) error {
	return c.exec(ctx, "RasterToVectorLines", f("input", input), f("output", output))
}

func (c *Client) RasterToVectorPolygons(ctx context.Context, input, output string) error {
	return c.exec(ctx, "RasterToVectorPolygons", f("input", input), f("output", output))
}

func (c *Client) ZonalStatistics(ctx context.Context, input, features string, stat geoproc.Stat, output string) error {
	if stat == "" {
		stat = geoproc.StatMean
	}
	return c.exec(ctx, "ZonalStatistics",
		f("input", input), f("features", features), f("output", output), f("stat", string(stat)))
}

func (c *Client) RadialBasisFunctionInterpolation(ctx context.Context, points, field, output string) error {
	return c.exec(ctx, "RadialBasisFunctionInterpolation",
		f("input", points), f("field", field), f("output", output), f("cell_size", num(c.cellSize)))
}

func (c *Client) Intersect(ctx context.Context, input, overlay, output string) error {
	return c.exec(ctx, "Intersect", f("input", input), f("overlay", overlay), f("output", output))
}
