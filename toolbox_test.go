package nrip

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"

	"github.com/siorconsulting/nrip-jamaica-open-source/internal/testutil"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/vector"
)

type harness struct {
	dir  string
	fake *testutil.FakeEngine
	tb   *Toolbox
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	t.Chdir(dir)

	fake := testutil.NewFakeEngine()
	opts = append([]Option{WithWorkingDir(dir), WithEngine(fake)}, opts...)
	tb, err := New(opts...)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "dem.tif"), []byte("dem"), 0o644))
	return &harness{dir: dir, fake: fake, tb: tb}
}

// files lists the regular files in the working directory, sorted.
func (h *harness) files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out
}

func (h *harness) exists(name string) bool {
	_, err := os.Stat(filepath.Join(h.dir, name))
	return err == nil
}

// writePoints writes a point shapefile with n features into the working
// directory.
func (h *harness) writePoints(t *testing.T, name string, n int) {
	t.Helper()
	tbl := &vector.Table{Type: shp.POINT, Fields: []vector.Field{vector.IntField("id")}}
	for i := 0; i < n; i++ {
		tbl.Rows = append(tbl.Rows, vector.Row{
			Shape: &shp.Point{X: float64(i), Y: float64(i)},
			Attrs: map[string]any{"id": i + 1},
		})
	}
	require.NoError(t, vector.Shapefiles{}.Write(tbl, filepath.Join(h.dir, name)))
}

// writeSquares writes a polygon shapefile of unit squares with a numeric
// "risk" column.
func (h *harness) writeSquares(t *testing.T, name string, risks ...float64) {
	t.Helper()
	tbl := &vector.Table{Type: shp.POLYGON, Fields: []vector.Field{vector.FloatField("risk")}}
	for i, r := range risks {
		x := float64(i)
		pts := []shp.Point{{X: x, Y: 0}, {X: x, Y: 1}, {X: x + 1, Y: 1}, {X: x + 1, Y: 0}, {X: x, Y: 0}}
		pl := shp.NewPolyLine([][]shp.Point{pts})
		poly := shp.Polygon(*pl)
		tbl.Rows = append(tbl.Rows, vector.Row{Shape: &poly, Attrs: map[string]any{"risk": r}})
	}
	require.NoError(t, vector.Shapefiles{}.Write(tbl, filepath.Join(h.dir, name)))
}

func TestNew_MissingDirectory(t *testing.T) {
	dir := t.TempDir()
	_, err := New(WithWorkingDir(filepath.Join(dir, "missing")), WithEngine(testutil.NewFakeEngine()))
	require.ErrorIs(t, err, ErrDirectoryUnavailable)
}

func TestNew_PointsEngineAtDirectory(t *testing.T) {
	h := newHarness(t, WithVerbose(true))
	require.Equal(t, h.dir, h.tb.WorkingDir())
	require.Equal(t, h.dir, h.fake.WorkingDir())
	require.True(t, h.fake.Verbose())

	h.tb.SetVerbose(false)
	require.False(t, h.fake.Verbose())
}

func TestToolbox_SetWorkingDir(t *testing.T) {
	h := newHarness(t)
	other, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(other, "dem.tif"), []byte("dem"), 0o644))

	require.NoError(t, h.tb.SetWorkingDir(other))
	require.Equal(t, other, h.tb.WorkingDir())

	_, err = h.tb.ClipByElevation(context.Background(), ClipOptions{DEM: "dem.tif"})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(other, "dem_clipped.tif"))
	require.NoError(t, err)
	require.False(t, h.exists("dem_clipped.tif"))

	require.ErrorIs(t, h.tb.SetWorkingDir(filepath.Join(other, "nope")), ErrDirectoryUnavailable)
	require.Equal(t, other, h.tb.WorkingDir())
}

func TestFlowBuilder_Panics(t *testing.T) {
	require.Panics(t, func() { Flow("") })
	require.Panics(t, func() {
		Flow("x").Step("", Final("a", "a.tif", KindRaster), Unary(nil))
	})
	require.Panics(t, func() { Flow("x").Step("s", Final("a", "a.tif", KindRaster), nil) })
}

func TestToolbox_RunCustomFlow(t *testing.T) {
	h := newHarness(t)
	eng := h.tb.Engine()

	flow := Flow("slope-buffer").
		Source("dem", "dem.tif", KindRaster).
		Step("slope", Temporary("slope", "slope.tif", KindRaster), Unary(eng.Slope), "dem").
		Step("buffer", Output("buffer", "buffer.tif", KindRaster, true), BufferStep(eng, 3), "slope").
		Retain("slope")

	res, err := h.tb.Run(context.Background(), flow.Definition())
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Instance.Status)

	p, ok := res.Path("buffer")
	require.True(t, ok)
	require.Equal(t, filepath.Join(h.dir, "buffer.tif"), p)
	_, ok = res.Path("slope")
	require.True(t, ok, "retained temporary is reported as surviving")
	require.Empty(t, res.Removed)

	last, ok := h.fake.Last("BufferRaster")
	require.True(t, ok)
	require.Equal(t, "3.0", last.Args["size"])
}

func TestToolbox_InvalidDefinitionIsRejected(t *testing.T) {
	h := newHarness(t)
	eng := h.tb.Engine()

	flow := Flow("forward-ref").
		Source("dem", "dem.tif", KindRaster).
		Step("a", Final("a", "a.tif", KindRaster), Unary(eng.Slope), "b").
		Step("b", Final("b", "b.tif", KindRaster), Unary(eng.Slope), "dem")

	res, err := h.tb.Run(context.Background(), flow.Definition())
	require.ErrorIs(t, err, ErrArtifactNotFound)
	require.Nil(t, res)
	require.Empty(t, h.fake.Calls())
}

func TestToolbox_ConcurrentRunsAreSerialised(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.tb.SteepAreas(context.Background(), SteepAreaOptions{
				DEM:       "dem.tif",
				Prefix:    "run" + string(rune('a'+i)),
				Threshold: 10,
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	for _, c := range h.fake.Calls() {
		require.Equal(t, h.dir, c.Cwd)
		require.Equal(t, h.dir, c.EngineDir)
	}
	require.Equal(t, 4, h.fake.Count("Slope"))
}

func TestToolbox_DriftIsRestored(t *testing.T) {
	h := newHarness(t)
	elsewhere, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	h.fake.DriftTo = elsewhere

	_, err = h.tb.SteepAreas(context.Background(), SteepAreaOptions{DEM: "dem.tif", Prefix: "site1", Threshold: 10})
	require.NoError(t, err)

	for _, c := range h.fake.Calls() {
		require.Equal(t, h.dir, c.Cwd, "tool %s ran in the wrong directory", c.Tool)
		require.Equal(t, h.dir, c.EngineDir)
	}
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.Equal(t, h.dir, cwd)
	require.Equal(t, h.dir, h.fake.WorkingDir())
}

func TestToolbox_Ledger(t *testing.T) {
	h := newHarness(t, WithInMemoryLedger())
	ctx := context.Background()

	res, err := h.tb.HydrologicalRouting(ctx, HydrologyOptions{DEM: "dem.tif", Prefix: "site1"})
	require.NoError(t, err)

	runs, err := h.tb.Instances(ctx, InstanceListOptions{WorkflowName: "hydrological-routing"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, res.Instance.ID, runs[0].ID)
	require.Equal(t, StatusCompleted, runs[0].Status)

	got, err := h.tb.Instance(ctx, res.Instance.ID)
	require.NoError(t, err)
	require.Len(t, got.Removed, 6)

	events, err := h.tb.Events(ctx, res.Instance.ID)
	require.NoError(t, err)
	counts := map[string]int{}
	for _, ev := range events {
		counts[string(ev.Type)]++
	}
	require.Equal(t, 1, counts["workflow.started"])
	require.Equal(t, 10, counts["step.started"])
	require.Equal(t, 10, counts["step.completed"])
	require.Equal(t, 6, counts["artifact.removed"])
	require.Equal(t, 1, counts["workflow.completed"])
}

func TestToolbox_MetricsObserver(t *testing.T) {
	metrics := &BasicMetrics{}
	h := newHarness(t, WithObserver(metrics))

	_, err := h.tb.InundationExtents(context.Background(), InundationOptions{
		Raster:            "dem.tif",
		Threshold:         2,
		InundationOutputs: InundationOutputs{DropRaster: true, Polygons: true},
	})
	require.NoError(t, err)

	snap := metrics.Snapshot()
	require.Equal(t, int64(1), snap.WorkflowsCompleted)
	require.Equal(t, int64(2), snap.StepsCompleted)
	require.Equal(t, int64(1), snap.ArtifactsRemoved)
}
