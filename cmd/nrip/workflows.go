package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	nrip "github.com/siorconsulting/nrip-jamaica-open-source"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/expr"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/geoproc"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/vector"
)

type workflowFunc func(ctx context.Context, tb *nrip.Toolbox) (*nrip.Result, error)

// run executes one workflow and prints what it left on disk. A failed run
// still prints its surviving artifacts before the error is returned.
func (a *app) run(cmd *cobra.Command, fn workflowFunc) error {
	tb, err := a.toolbox()
	if err != nil {
		return err
	}
	res, err := fn(cmd.Context(), tb)
	if res != nil {
		printResult(cmd.OutOrStdout(), res)
	}
	return err
}

func printResult(w io.Writer, res *nrip.Result) {
	inst := res.Instance
	fmt.Fprintf(w, "%s %s (run %s)\n", inst.Name, inst.Status, inst.ID)

	names := make([]string, 0, len(res.Outputs))
	for name := range res.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-24s %s\n", name, res.Outputs[name])
	}
	if n := len(res.Removed); n > 0 {
		fmt.Fprintf(w, "removed %d intermediate file(s)\n", n)
	}
}

func requireFlags(cmd *cobra.Command, names ...string) {
	for _, n := range names {
		_ = cmd.MarkFlagRequired(n)
	}
}

func (a *app) hydroCmd() *cobra.Command {
	var opts nrip.HydrologyOptions
	cmd := &cobra.Command{
		Use:   "hydro",
		Short: "Stream network, watershed basins and depression fill from a DEM",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, tb *nrip.Toolbox) (*nrip.Result, error) {
				return tb.HydrologicalRouting(ctx, opts)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.DEM, "dem", "", "elevation raster")
	f.StringVar(&opts.Prefix, "prefix", "", "prefix for every output name")
	f.Float64Var(&opts.FlowAccumulationThreshold, "threshold", 0, "flow accumulation threshold for streams (default 1000)")
	f.BoolVar(&opts.KeepTemporaries, "keep-temps", false, "keep every intermediate raster")
	f.StringSliceVar(&opts.Retain, "retain", nil, "intermediates to keep by name (fill, fdir, facc, ...)")
	requireFlags(cmd, "dem")
	return cmd
}

func (a *app) floodHazardCmd() *cobra.Command {
	var opts nrip.FloodHazardOptions
	cmd := &cobra.Command{
		Use:   "flood-hazard",
		Short: "Buffered stream network polygons from a DEM",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, tb *nrip.Toolbox) (*nrip.Result, error) {
				return tb.FloodHazardAreas(ctx, opts)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.DEM, "dem", "", "elevation raster")
	f.StringVar(&opts.Prefix, "prefix", "", "prefix for every output name")
	f.Float64Var(&opts.BufferDistance, "distance", 0, "buffer distance in cells")
	f.Float64Var(&opts.FlowAccumulationThreshold, "threshold", 0, "flow accumulation threshold for streams (default 1000)")
	f.BoolVar(&opts.KeepTemporaries, "keep-temps", false, "keep every intermediate raster")
	f.StringSliceVar(&opts.Retain, "retain", nil, "intermediates to keep by name")
	requireFlags(cmd, "dem", "distance")
	return cmd
}

func (a *app) steepCmd() *cobra.Command {
	var opts nrip.SteepAreaOptions
	cmd := &cobra.Command{
		Use:   "steep",
		Short: "Areas whose slope exceeds a threshold",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, tb *nrip.Toolbox) (*nrip.Result, error) {
				return tb.SteepAreas(ctx, opts)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.DEM, "dem", "", "elevation raster")
	f.StringVar(&opts.Prefix, "prefix", "", "prefix for every output name")
	f.Float64Var(&opts.Threshold, "threshold", 0, "slope in degrees")
	f.BoolVar(&opts.KeepTemporaries, "keep-temps", false, "keep the slope raster")
	requireFlags(cmd, "dem", "threshold")
	return cmd
}

func (a *app) clipCmd() *cobra.Command {
	var opts nrip.ClipOptions
	cmd := &cobra.Command{
		Use:   "clip",
		Short: "Keep DEM cells above sea level",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, tb *nrip.Toolbox) (*nrip.Result, error) {
				return tb.ClipByElevation(ctx, opts)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.DEM, "dem", "", "elevation raster")
	f.StringVar(&opts.Output, "output", "", "output raster (default <dem>_clipped.tif)")
	requireFlags(cmd, "dem")
	return cmd
}

func inundationFlags(cmd *cobra.Command, out *nrip.InundationOutputs, name *string) {
	f := cmd.Flags()
	f.StringVar(name, "name", "", "output name without extension")
	f.BoolVar(&out.Polygons, "polygons", false, "also write the extents as polygons")
	f.BoolVar(&out.DropRaster, "drop-raster", false, "delete the extents raster when done")
	f.Float64Var(&out.Value, "value", 1, "value written to inundated cells")
}

func (a *app) inundationCmd() *cobra.Command {
	var opts nrip.InundationOptions
	cmd := &cobra.Command{
		Use:   "inundation",
		Short: "Cells at or below a water level",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, tb *nrip.Toolbox) (*nrip.Result, error) {
				return tb.InundationExtents(ctx, opts)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Raster, "raster", "", "elevation or depth raster")
	cmd.Flags().Float64Var(&opts.Threshold, "threshold", 0, "water level")
	inundationFlags(cmd, &opts.InundationOutputs, &opts.OutputName)
	requireFlags(cmd, "raster", "threshold")
	return cmd
}

func (a *app) inundationBetweenCmd() *cobra.Command {
	var (
		opts nrip.InundationRangeOptions
		op   string
	)
	cmd := &cobra.Command{
		Use:   "inundation-between",
		Short: "Cells between two water levels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := expr.ParseOp(op)
			if err != nil {
				return err
			}
			if !parsed.IsRange() {
				return fmt.Errorf("--op must be a range comparison, got %q", op)
			}
			opts.Op = parsed
			return a.run(cmd, func(ctx context.Context, tb *nrip.Toolbox) (*nrip.Result, error) {
				return tb.InundationExtentsBetween(ctx, opts)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Raster, "raster", "", "elevation or depth raster")
	f.Float64Var(&opts.Low, "low", 0, "lower water level")
	f.Float64Var(&opts.High, "high", 0, "upper water level")
	f.StringVar(&op, "op", "(]", "range bounds: \"(]\" for low < v <= high, \"[)\" for low <= v < high")
	inundationFlags(cmd, &opts.InundationOutputs, &opts.OutputName)
	requireFlags(cmd, "raster", "low", "high")
	return cmd
}

func parseKind(s string) (api.ArtifactKind, error) {
	if s == "" {
		return "", nil
	}
	return api.ParseKind(s)
}

func (a *app) surfaceCmd(role, short string) *cobra.Command {
	var (
		opts nrip.SurfaceOptions
		kind string
	)
	cmd := &cobra.Command{
		Use:   role,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			opts.Kind = k
			return a.run(cmd, func(ctx context.Context, tb *nrip.Toolbox) (*nrip.Result, error) {
				if role == "hotspots" {
					return tb.HotspotsFrom(ctx, opts)
				}
				return tb.DistanceFrom(ctx, opts)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Input, "input", "", "raster or shapefile")
	f.StringVar(&kind, "kind", "", "raster, points, lines or polygons (default inferred)")
	f.StringVar(&opts.Output, "output", "", "output raster")
	f.Float64Var(&opts.CellSize, "cell-size", 0, "cell size when rasterizing vectors")
	if role == "hotspots" {
		f.Float64Var(&opts.Sigma, "sigma", 0, "Gaussian filter sigma (default by input kind)")
	}
	requireFlags(cmd, "input")
	return cmd
}

func (a *app) zonalCmd() *cobra.Command {
	var (
		opts       nrip.ZonalOptions
		kind, stat string
	)
	cmd := &cobra.Command{
		Use:   "zonal",
		Short: "Summarise a raster within zones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			s, ok := geoproc.ParseStat(stat)
			if !ok {
				return fmt.Errorf("unknown statistic %q", stat)
			}
			opts.ZonesKind, opts.Stat = k, s
			return a.run(cmd, func(ctx context.Context, tb *nrip.Toolbox) (*nrip.Result, error) {
				return tb.ZonalStatistics(ctx, opts)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Raster, "raster", "", "value raster")
	f.StringVar(&opts.Zones, "zones", "", "polygon shapefile or zone raster")
	f.StringVar(&kind, "zones-kind", "", "raster or polygons (default inferred)")
	f.StringVar(&opts.Output, "output", "", "output raster")
	f.StringVar(&opts.Field, "field", "", "zone id column for polygon zones (default FID)")
	f.StringVar(&stat, "stat", "mean", "mean, median, min, max, range, std or sum")
	requireFlags(cmd, "raster", "zones")
	return cmd
}

func (a *app) intersectCmd() *cobra.Command {
	var input, overlay, output string
	cmd := &cobra.Command{
		Use:   "intersect",
		Short: "Intersect a vector layer with an overlay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, tb *nrip.Toolbox) (*nrip.Result, error) {
				return tb.Intersect(ctx, input, overlay, output)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&input, "input", "", "input shapefile")
	f.StringVar(&overlay, "overlay", "", "overlay shapefile")
	f.StringVar(&output, "output", "", "output shapefile")
	requireFlags(cmd, "input", "overlay", "output")
	return cmd
}

func (a *app) interpolateCmd() *cobra.Command {
	var points, field, output string
	cmd := &cobra.Command{
		Use:   "interpolate",
		Short: "Radial basis function surface from points",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, tb *nrip.Toolbox) (*nrip.Result, error) {
				return tb.InterpolatePoints(ctx, points, field, output)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&points, "points", "", "point shapefile")
	f.StringVar(&field, "field", "", "attribute to interpolate")
	f.StringVar(&output, "output", "", "output raster")
	requireFlags(cmd, "points", "field", "output")
	return cmd
}

func (a *app) summarizeCmd() *cobra.Command {
	var (
		opts nrip.SummarizeOptions
		agg  string
	)
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Join polygon attributes onto features and dissolve",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := vector.ParseAgg(agg)
			if err != nil {
				return err
			}
			opts.Agg = parsed
			return a.run(cmd, func(ctx context.Context, tb *nrip.Toolbox) (*nrip.Result, error) {
				return tb.SummarizeWithin(ctx, opts)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Input, "input", "", "input shapefile")
	f.StringVar(&opts.Polygons, "polygons", "", "polygon shapefile")
	f.StringVar(&opts.Output, "output", "", "output shapefile")
	f.StringVar(&opts.Field, "field", "", "dissolve field (default one group per feature)")
	f.StringVar(&agg, "agg", "mean", "mean, sum, min, max, first or count")
	requireFlags(cmd, "input", "polygons", "output")
	return cmd
}

var errNoLedger = errors.New("no ledger configured: set ledger.path or NRIP_LEDGER")

func (a *app) runsCmd() *cobra.Command {
	var workflow, status, artifact string
	cmd := &cobra.Command{
		Use:   "runs [id]",
		Short: "List recorded runs, the events of one run, or the history of one file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Ledger.Path == "" {
				return errNoLedger
			}
			tb, err := a.toolbox()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(args) == 1 || artifact != "" {
				var events []nrip.WorkflowEvent
				if artifact != "" {
					events, err = tb.ArtifactHistory(cmd.Context(), artifact)
				} else {
					events, err = tb.Events(cmd.Context(), args[0])
				}
				if err != nil {
					return err
				}
				for _, ev := range events {
					printEvent(w, ev, artifact != "")
				}
				return nil
			}

			runs, err := tb.Instances(cmd.Context(), nrip.InstanceListOptions{
				WorkflowName: workflow,
				Status:       nrip.Status(status),
			})
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Fprintf(w, "%s  %-24s %-9s %s  removed=%d\n",
					r.ID, r.Name, r.Status, r.StartedAt.Format("2006-01-02T15:04:05"), len(r.Removed))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&workflow, "workflow", "", "only runs of this workflow")
	cmd.Flags().StringVar(&status, "status", "", "only runs with this status (COMPLETED, FAILED)")
	cmd.Flags().StringVar(&artifact, "artifact", "", "events of every run that wrote or removed this file")
	return cmd
}

func printEvent(w io.Writer, ev nrip.WorkflowEvent, withRun bool) {
	line := fmt.Sprintf("%s  %-18s step=%d  %s", ev.At.Format("2006-01-02T15:04:05"), ev.Type, ev.Step, ev.Detail)
	if ev.Artifact != "" {
		line += "  " + ev.Artifact
	}
	if withRun {
		line = ev.InstanceID + "  " + line
	}
	fmt.Fprintln(w, line)
}
