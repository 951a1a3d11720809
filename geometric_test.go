package nrip

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/vector"
)

func TestDistanceFrom_Points(t *testing.T) {
	h := newHarness(t)
	h.writePoints(t, "wells.shp", 3)

	res, err := h.tb.DistanceFrom(context.Background(), SurfaceOptions{Input: "wells.shp"})
	require.NoError(t, err)
	require.Equal(t, "distance-from-points", res.Instance.Name)

	require.Equal(t, []string{"VectorPointsToRaster", "ConvertNodataToZero", "EuclideanDistance"}, h.fake.Tools())
	r, _ := h.fake.Last("VectorPointsToRaster")
	require.Equal(t, []string{"wells_distance_input.shp"}, r.Inputs)
	require.Equal(t, "FID_wbt", r.Args["field"])
	require.Equal(t, "true", r.Args["nodata"])
	require.Equal(t, "100.0", r.Args["cell_size"])

	require.Equal(t, []string{
		"dem.tif",
		"wells.dbf",
		"wells.shp",
		"wells.shx",
		"wells_distance.tif",
	}, h.files(t))
	require.Len(t, res.Removed, 3)
}

func TestDistanceFrom_TagsEveryFeature(t *testing.T) {
	h := newHarness(t)
	h.writeSquares(t, "parcels.shp", 1, 2)

	b, err := h.tb.surfaceFlow("distance", SurfaceOptions{Input: "parcels.shp", Output: "d.tif", CellSize: 25})
	require.NoError(t, err)
	_, err = h.tb.Run(context.Background(), b.KeepTemporaries(true).Definition())
	require.NoError(t, err)

	tagged, err := vector.Shapefiles{}.Read(filepath.Join(h.dir, "d_input.shp"))
	require.NoError(t, err)
	require.Equal(t, shp.ShapeType(shp.POLYGON), tagged.Type)
	require.Equal(t, []any{1, 1}, tagged.Column("FID_wbt"))
	require.Equal(t, []any{1.0, 2.0}, tagged.Column("risk"))

	r, _ := h.fake.Last("VectorPolygonsToRaster")
	require.Equal(t, "25.0", r.Args["cell_size"])
}

func TestDistanceFrom_RemovesProjectionOfTaggedCopy(t *testing.T) {
	h := newHarness(t)
	h.writePoints(t, "wells.shp", 2)
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "wells.prj"), []byte("PROJCS[]"), 0o644))

	_, err := h.tb.DistanceFrom(context.Background(), SurfaceOptions{Input: "wells.shp"})
	require.NoError(t, err)
	require.Equal(t, []string{
		"dem.tif",
		"wells.dbf",
		"wells.prj",
		"wells.shp",
		"wells.shx",
		"wells_distance.tif",
	}, h.files(t))
}

func TestDistanceFrom_RasterSkipsRasterize(t *testing.T) {
	h := newHarness(t)

	res, err := h.tb.DistanceFrom(context.Background(), SurfaceOptions{Input: "dem.tif", Output: "dist.tif"})
	require.NoError(t, err)
	require.Equal(t, []string{"ConvertNodataToZero", "EuclideanDistance"}, h.fake.Tools())
	require.Equal(t, []string{"dist_zeros.tif"}, res.Removed)
	require.Equal(t, []string{"dem.tif", "dist.tif"}, h.files(t))
}

func TestHotspotsFrom_DefaultSigma(t *testing.T) {
	cases := []struct {
		name  string
		setup func(t *testing.T, h *harness)
		input string
		want  string
	}{
		{"points", func(t *testing.T, h *harness) { h.writePoints(t, "pts.shp", 2) }, "pts.shp", "100.0"},
		{"polygons", func(t *testing.T, h *harness) { h.writeSquares(t, "poly.shp", 1) }, "poly.shp", "10.0"},
		{"raster", func(*testing.T, *harness) {}, "dem.tif", "10.0"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := newHarness(t)
			c.setup(t, h)

			_, err := h.tb.HotspotsFrom(context.Background(), SurfaceOptions{Input: c.input})
			require.NoError(t, err)
			g, ok := h.fake.Last("GaussianFilter")
			require.True(t, ok)
			require.Equal(t, c.want, g.Args["sigma"])
		})
	}
}

func TestHotspotsFrom_ExplicitKindAndSigma(t *testing.T) {
	h := newHarness(t)
	h.writeSquares(t, "roads.shp", 1)

	_, err := h.tb.HotspotsFrom(context.Background(), SurfaceOptions{
		Input: "roads.shp",
		Kind:  KindLines,
		Sigma: 4.5,
	})
	require.NoError(t, err)
	require.Equal(t, 1, h.fake.Count("VectorLinesToRaster"))
	g, _ := h.fake.Last("GaussianFilter")
	require.Equal(t, "4.5", g.Args["sigma"])
}

func TestZonalStatistics_RasterZones(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "zones.tif"), []byte("zones"), 0o644))

	res, err := h.tb.ZonalStatistics(context.Background(), ZonalOptions{Raster: "dem.tif", Zones: "zones.tif"})
	require.NoError(t, err)

	require.Equal(t, []string{"ZonalStatistics"}, h.fake.Tools())
	z, _ := h.fake.Last("ZonalStatistics")
	require.Equal(t, []string{"dem.tif", "zones.tif"}, z.Inputs)
	require.Equal(t, "mean", z.Args["stat"])
	require.Equal(t, "dem_zonal_mean.tif", z.Output)
	require.Empty(t, res.Removed)
}

func TestZonalStatistics_PolygonZones(t *testing.T) {
	h := newHarness(t)
	h.writeSquares(t, "parishes.shp", 1, 2, 3)

	res, err := h.tb.ZonalStatistics(context.Background(), ZonalOptions{
		Raster: "dem.tif",
		Zones:  "parishes.shp",
		Output: "zonal.tif",
		Stat:   StatMax,
	})
	require.NoError(t, err)

	require.Equal(t, []string{"VectorPolygonsToRaster", "ZonalStatistics"}, h.fake.Tools())
	r, _ := h.fake.Last("VectorPolygonsToRaster")
	require.Equal(t, []string{"zonal_zones.shp"}, r.Inputs)
	require.Equal(t, "FID", r.Args["field"])
	require.Equal(t, "dem.tif", r.Args["base"])
	require.Equal(t, "false", r.Args["nodata"])

	z, _ := h.fake.Last("ZonalStatistics")
	require.Equal(t, []string{"dem.tif", "zonal_zones.tif"}, z.Inputs)
	require.Equal(t, "maximum", z.Args["stat"])

	require.Equal(t, []string{
		"dem.tif",
		"parishes.dbf",
		"parishes.shp",
		"parishes.shx",
		"zonal.tif",
	}, h.files(t))
	require.Len(t, res.Removed, 2)
}

func TestZonalStatistics_RejectsPointZones(t *testing.T) {
	h := newHarness(t)
	h.writePoints(t, "pts.shp", 1)

	_, err := h.tb.ZonalStatistics(context.Background(), ZonalOptions{Raster: "dem.tif", Zones: "pts.shp"})
	require.ErrorIs(t, err, ErrUnknownKind)
	require.Empty(t, h.fake.Calls())
}

func TestIntersect(t *testing.T) {
	h := newHarness(t)

	res, err := h.tb.Intersect(context.Background(), "roads.shp", "flood.shp", "roads_flooded.shp")
	require.NoError(t, err)
	i, _ := h.fake.Last("Intersect")
	require.Equal(t, []string{"roads.shp", "flood.shp"}, i.Inputs)
	_, ok := res.Path("intersection")
	require.True(t, ok)
	require.True(t, h.exists("roads_flooded.shp"))
}

func TestInterpolatePoints(t *testing.T) {
	h := newHarness(t)

	_, err := h.tb.InterpolatePoints(context.Background(), "gauges.shp", "depth", "depth.tif")
	require.NoError(t, err)
	c, _ := h.fake.Last("RadialBasisFunctionInterpolation")
	require.Equal(t, "depth", c.Args["field"])
	require.Equal(t, "depth.tif", c.Output)
}

func TestSummarizeWithin_ByRow(t *testing.T) {
	h := newHarness(t)
	h.writePoints(t, "wells.shp", 3)
	h.writeSquares(t, "parishes.shp", 1, 2)

	_, err := h.tb.SummarizeWithin(context.Background(), SummarizeOptions{
		Input:    "wells.shp",
		Polygons: "parishes.shp",
		Output:   "summary.shp",
	})
	require.NoError(t, err)
	require.Empty(t, h.fake.Calls())

	got, err := vector.Shapefiles{}.Read(filepath.Join(h.dir, "summary.shp"))
	require.NoError(t, err)
	require.Equal(t, shp.ShapeType(shp.MULTIPOINT), got.Type)
	require.Len(t, got.Rows, 3)
	require.Equal(t, []any{0, 1, 2}, got.Column("Index_WBT"))
	require.Equal(t, []any{1.0, 2.0, nil}, got.Column("risk"))
}

func TestSummarizeWithin_ByField(t *testing.T) {
	h := newHarness(t)
	h.writePoints(t, "wells.shp", 3)
	h.writeSquares(t, "parishes.shp", 5, 5, 7)

	_, err := h.tb.SummarizeWithin(context.Background(), SummarizeOptions{
		Input:    "wells.shp",
		Polygons: "parishes.shp",
		Output:   "summary.shp",
		Field:    "risk",
		Agg:      vector.AggSum,
	})
	require.NoError(t, err)

	got, err := vector.Shapefiles{}.Read(filepath.Join(h.dir, "summary.shp"))
	require.NoError(t, err)
	require.Len(t, got.Rows, 2)
	require.Equal(t, []any{5.0, 7.0}, got.Column("risk"))
	require.EqualValues(t, []any{3, 3}, got.Column("id"))
}

func TestSummarizeWithin_MissingInput(t *testing.T) {
	h := newHarness(t)
	h.writeSquares(t, "parishes.shp", 1)

	res, err := h.tb.SummarizeWithin(context.Background(), SummarizeOptions{
		Input:    "missing.shp",
		Polygons: "parishes.shp",
		Output:   "summary.shp",
	})
	require.ErrorIs(t, err, ErrExternalOperation)
	require.Equal(t, StatusFailed, res.Instance.Status)
}
