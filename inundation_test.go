package nrip

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInundationExtents_RasterOnly(t *testing.T) {
	h := newHarness(t)
	before := h.files(t)

	res, err := h.tb.InundationExtents(context.Background(), InundationOptions{Raster: "dem.tif", Threshold: 2.0})
	require.NoError(t, err)

	require.Equal(t, append(before, "inundation_extents_2.0.tif"), h.files(t))
	require.Equal(t, []string{"ConditionalEvaluation"}, h.fake.Tools())

	c, _ := h.fake.Last("ConditionalEvaluation")
	require.Equal(t, "value <= 2.0", c.Args["statement"])
	require.Equal(t, "1.0", c.Args["true"])
	require.Equal(t, "null", c.Args["false"])

	_, ok := res.Path(InundationRaster)
	require.True(t, ok)
	_, ok = res.Path(InundationPolygons)
	require.False(t, ok)
}

func TestInundationExtents_RejectsOutputOverInput(t *testing.T) {
	h := newHarness(t)

	_, err := h.tb.InundationExtents(context.Background(), InundationOptions{
		Raster:            "dem.tif",
		Threshold:         1,
		OutputName:        "dem",
		InundationOutputs: InundationOutputs{DropRaster: true, Polygons: true},
	})
	require.ErrorIs(t, err, ErrDuplicateArtifact)
	require.Empty(t, h.fake.Calls())
	require.Equal(t, []string{"dem.tif"}, h.files(t))
}

func TestInundationExtentsBetween_PolygonsOnly(t *testing.T) {
	h := newHarness(t)

	res, err := h.tb.InundationExtentsBetween(context.Background(), InundationRangeOptions{
		Raster:            "dem.tif",
		Low:               1.0,
		High:              3.0,
		InundationOutputs: InundationOutputs{DropRaster: true, Polygons: true},
	})
	require.NoError(t, err)

	require.Equal(t, []string{
		"dem.tif",
		"inundation_extents_between_1.0_and_3.0.dbf",
		"inundation_extents_between_1.0_and_3.0.shp",
		"inundation_extents_between_1.0_and_3.0.shx",
	}, h.files(t))
	require.Equal(t, []string{"inundation_extents_between_1.0_and_3.0.tif"}, res.Removed)

	c, _ := h.fake.Last("ConditionalEvaluation")
	require.Equal(t, "(value > 1.0) && (value <= 3.0)", c.Args["statement"])
}

func TestInundationExtentsBetween_InclusiveLowAndScore(t *testing.T) {
	h := newHarness(t)

	_, err := h.tb.InundationExtentsBetween(context.Background(), InundationRangeOptions{
		Raster:            "dem.tif",
		Low:               0.5,
		High:              1,
		Op:                BetweenIncExc,
		OutputName:        "flood_band",
		InundationOutputs: InundationOutputs{Polygons: true, Value: 3},
	})
	require.NoError(t, err)

	c, _ := h.fake.Last("ConditionalEvaluation")
	require.Equal(t, "(value >= 0.5) && (value < 1.0)", c.Args["statement"])
	require.Equal(t, "3.0", c.Args["true"])
	require.True(t, h.exists("flood_band.tif"))
	require.True(t, h.exists("flood_band.shp"))
}

func TestInundationExtentsBetween_InvalidRange(t *testing.T) {
	h := newHarness(t)

	_, err := h.tb.InundationExtentsBetween(context.Background(), InundationRangeOptions{Raster: "dem.tif", Low: 3, High: 1})
	require.ErrorIs(t, err, ErrInvalidThresholdRange)

	_, err = h.tb.InundationExtentsBetween(context.Background(), InundationRangeOptions{Raster: "dem.tif", Low: 2, High: 2})
	require.ErrorIs(t, err, ErrInvalidThresholdRange)

	require.Empty(t, h.fake.Calls())
}

func TestInundationExtents_Neither(t *testing.T) {
	h := newHarness(t)

	res, err := h.tb.InundationExtents(context.Background(), InundationOptions{
		Raster:            "dem.tif",
		Threshold:         1,
		InundationOutputs: InundationOutputs{DropRaster: true},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"dem.tif"}, h.files(t))
	require.Empty(t, res.Outputs)
}
