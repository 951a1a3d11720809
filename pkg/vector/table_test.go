package vector

import (
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

func square(x, y float64) *shp.Polygon {
	pl := shp.NewPolyLine([][]shp.Point{{
		{X: x, Y: y}, {X: x, Y: y + 1}, {X: x + 1, Y: y + 1}, {X: x + 1, Y: y}, {X: x, Y: y},
	}})
	p := shp.Polygon(*pl)
	return &p
}

func parcels() *Table {
	return &Table{
		Type:   shp.POLYGON,
		Fields: []Field{StringField("zone"), FloatField("depth")},
		Rows: []Row{
			{Shape: square(0, 0), Attrs: map[string]any{"zone": "b", "depth": 1.0}},
			{Shape: square(1, 0), Attrs: map[string]any{"zone": "a", "depth": 2.0}},
			{Shape: square(2, 0), Attrs: map[string]any{"zone": "b", "depth": 4.0}},
		},
	}
}

func TestAddIndexColumn(t *testing.T) {
	tbl := parcels()
	tbl.AddIndexColumn("FID")

	require.Equal(t, []any{0, 1, 2}, tbl.Column("FID"))
	f, ok := tbl.Field("FID")
	require.True(t, ok)
	require.Equal(t, Numeric, f.Type)

	tbl.AddIndexColumn("FID")
	require.Len(t, tbl.Fields, 3, "re-adding must not duplicate the column")
}

func TestSetColumn(t *testing.T) {
	tbl := parcels()
	tbl.SetColumn("FID_wbt", 1)
	require.Equal(t, []any{1, 1, 1}, tbl.Column("FID_wbt"))

	f, _ := tbl.Field("FID_wbt")
	require.Equal(t, Numeric, f.Type)
}

func TestDropColumn(t *testing.T) {
	tbl := parcels()
	require.NoError(t, tbl.DropColumn("depth"))
	require.Equal(t, -1, tbl.FieldIndex("depth"))
	_, ok := tbl.Rows[0].Attrs["depth"]
	require.False(t, ok)

	require.ErrorIs(t, tbl.DropColumn("depth"), ErrNoSuchColumn)
}

func TestJoin_SuffixesOverlapAndCarriesGeometry(t *testing.T) {
	left := parcels()
	right := &Table{
		Type:   shp.POLYGON,
		Fields: []Field{FloatField("depth"), StringField("owner")},
		Rows: []Row{
			{Shape: square(10, 10), Attrs: map[string]any{"depth": 9.0, "owner": "x"}},
			{Shape: square(11, 10), Attrs: map[string]any{"depth": 8.0, "owner": "y"}},
		},
	}

	joined := left.Join(right, "_P")

	require.Equal(t, []any{1.0, 2.0, 4.0}, joined.Column("depth"))
	require.Equal(t, []any{9.0, 8.0, nil}, joined.Column("depth_P"))
	require.Equal(t, []any{"x", "y", nil}, joined.Column("owner"))
	require.Same(t, right.Rows[0].Shape, joined.Rows[0].Attrs["geometry_P"])

	require.NoError(t, joined.DropColumn("geometry_P"))
	_, ok := joined.Rows[0].Attrs["geometry_P"]
	require.False(t, ok)

	_, ok = left.Rows[0].Attrs["depth_P"]
	require.False(t, ok, "join must not modify its receiver")
}

func TestDissolve_AggregatesNumericColumns(t *testing.T) {
	out, err := parcels().Dissolve("zone", AggMean)
	require.NoError(t, err)
	require.Len(t, out.Rows, 2)

	require.Equal(t, "a", out.Rows[0].Attrs["zone"])
	require.Equal(t, 2.0, out.Rows[0].Attrs["depth"])
	require.Equal(t, "b", out.Rows[1].Attrs["zone"])
	require.Equal(t, 2.5, out.Rows[1].Attrs["depth"])

	poly, ok := out.Rows[1].Shape.(*shp.Polygon)
	require.True(t, ok)
	require.EqualValues(t, 2, poly.NumParts)
	require.EqualValues(t, 10, poly.NumPoints)
}

func TestDissolve_OtherAggregations(t *testing.T) {
	cases := map[Agg]any{
		AggSum:   5.0,
		AggMin:   1.0,
		AggMax:   4.0,
		AggFirst: 1.0,
		AggCount: 2,
	}
	for agg, want := range cases {
		out, err := parcels().Dissolve("zone", agg)
		require.NoError(t, err)
		require.Equal(t, want, out.Rows[1].Attrs["depth"], "agg %s", agg)
	}
}

func TestDissolve_PointsBecomeMultiPoints(t *testing.T) {
	tbl := &Table{
		Type:   shp.POINT,
		Fields: []Field{IntField("k")},
		Rows: []Row{
			{Shape: &shp.Point{X: 1, Y: 1}, Attrs: map[string]any{"k": 1}},
			{Shape: &shp.Point{X: 2, Y: 2}, Attrs: map[string]any{"k": 1}},
		},
	}
	out, err := tbl.Dissolve("k", AggFirst)
	require.NoError(t, err)
	require.Equal(t, shp.ShapeType(shp.MULTIPOINT), out.Type)
	mp, ok := out.Rows[0].Shape.(*shp.MultiPoint)
	require.True(t, ok)
	require.EqualValues(t, 2, mp.NumPoints)
}

func TestDissolve_UnknownColumn(t *testing.T) {
	_, err := parcels().Dissolve("missing", AggMean)
	require.ErrorIs(t, err, ErrNoSuchColumn)
}

func TestParseAgg(t *testing.T) {
	a, err := ParseAgg("")
	require.NoError(t, err)
	require.Equal(t, AggMean, a)

	_, err = ParseAgg("median")
	require.Error(t, err)
}
