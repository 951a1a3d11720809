// Package vector holds attribute tables of vector features and the
// operations workflows apply to them between engine calls.
//
// Tables are read and written through a Library. Geometry is carried as
// shapefile shapes and never modified beyond concatenating parts in
// Dissolve; topology is left to the geoprocessing engine.
package vector

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/jonas-p/go-shp"
)

// GeometryColumn is the name geometry takes when a joined table's shapes
// are carried as an attribute.
const GeometryColumn = "geometry"

// FieldType is a dBASE column type.
type FieldType byte

const (
	Character FieldType = 'C'
	Numeric   FieldType = 'N'
	Float     FieldType = 'F'
	Logical   FieldType = 'L'
	Date      FieldType = 'D'
)

// Field describes one attribute column.
type Field struct {
	Name      string
	Type      FieldType
	Size      uint8
	Precision uint8
}

// IsNumeric reports whether values in the column are numbers.
func (f Field) IsNumeric() bool {
	return f.Type == Numeric || f.Type == Float
}

// IntField is a whole-number column.
func IntField(name string) Field { return Field{Name: name, Type: Numeric, Size: 10} }

// FloatField is a real-number column.
func FloatField(name string) Field { return Field{Name: name, Type: Float, Size: 24, Precision: 10} }

// StringField is a text column.
func StringField(name string) Field { return Field{Name: name, Type: Character, Size: 254} }

// Row is one feature: its geometry and attribute values by column name.
type Row struct {
	Shape shp.Shape
	Attrs map[string]any
}

// Table is an ordered set of features sharing one geometry type.
type Table struct {
	Type   shp.ShapeType
	Fields []Field
	Rows   []Row
}

// Agg names a dissolve aggregation.
type Agg string

const (
	AggMean  Agg = "mean"
	AggSum   Agg = "sum"
	AggMin   Agg = "min"
	AggMax   Agg = "max"
	AggFirst Agg = "first"
	AggCount Agg = "count"
)

// ParseAgg accepts the aggregation names; empty means mean.
func ParseAgg(s string) (Agg, error) {
	switch Agg(s) {
	case "":
		return AggMean, nil
	case AggMean, AggSum, AggMin, AggMax, AggFirst, AggCount:
		return Agg(s), nil
	}
	return "", fmt.Errorf("unknown aggregation %q", s)
}

var ErrNoSuchColumn = errors.New("no such column")

// FieldIndex returns the position of the named column, or -1.
func (t *Table) FieldIndex(name string) int {
	for i, f := range t.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Field returns the named column.
func (t *Table) Field(name string) (Field, bool) {
	if i := t.FieldIndex(name); i >= 0 {
		return t.Fields[i], true
	}
	return Field{}, false
}

func (t *Table) putField(f Field) {
	if i := t.FieldIndex(f.Name); i >= 0 {
		t.Fields[i] = f
		return
	}
	t.Fields = append(t.Fields, f)
}

// Column returns the values of the named column in row order.
func (t *Table) Column(name string) []any {
	out := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Attrs[name]
	}
	return out
}

// AddIndexColumn sets name to each row's position, starting at zero.
func (t *Table) AddIndexColumn(name string) {
	t.putField(IntField(name))
	for i := range t.Rows {
		t.row(i)[name] = i
	}
}

// SetColumn sets name to value on every row. The column type follows the
// value's Go type.
func (t *Table) SetColumn(name string, value any) {
	t.putField(fieldFor(name, value))
	for i := range t.Rows {
		t.row(i)[name] = value
	}
}

// DropColumn removes a column and its values.
func (t *Table) DropColumn(name string) error {
	i := t.FieldIndex(name)
	found := i >= 0
	if found {
		t.Fields = append(t.Fields[:i], t.Fields[i+1:]...)
	}
	for _, r := range t.Rows {
		if _, ok := r.Attrs[name]; ok {
			found = true
			delete(r.Attrs, name)
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNoSuchColumn, name)
	}
	return nil
}

// Join attaches the attributes of other to t by row position. Rows of t
// beyond the length of other get nil values. Columns of other whose name
// already exists in t get suffix appended; the shapes of other are carried
// in GeometryColumn+suffix.
func (t *Table) Join(other *Table, suffix string) *Table {
	out := t.Clone()

	names := make(map[string]string, len(other.Fields))
	for _, f := range other.Fields {
		name := f.Name
		if out.FieldIndex(name) >= 0 {
			name += suffix
		}
		names[f.Name] = name
		f.Name = name
		out.Fields = append(out.Fields, f)
	}
	geom := GeometryColumn + suffix

	for i := range out.Rows {
		attrs := out.row(i)
		if i >= len(other.Rows) {
			for _, n := range names {
				attrs[n] = nil
			}
			attrs[geom] = nil
			continue
		}
		src := other.Rows[i]
		for from, to := range names {
			attrs[to] = src.Attrs[from]
		}
		attrs[geom] = src.Shape
	}
	return out
}

// Dissolve groups rows sharing a value of by. Numeric columns are combined
// with agg; other columns keep the first value. The shapes of a group are
// concatenated into one multipart feature. Groups are ordered by key.
func (t *Table) Dissolve(by string, agg Agg) (*Table, error) {
	if t.FieldIndex(by) < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchColumn, by)
	}

	type group struct {
		key  any
		rows []Row
	}
	groups := map[string]*group{}
	var keys []string
	for _, r := range t.Rows {
		k := fmt.Sprint(r.Attrs[by])
		g, ok := groups[k]
		if !ok {
			g = &group{key: r.Attrs[by]}
			groups[k] = g
			keys = append(keys, k)
		}
		g.rows = append(g.rows, r)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return lessKey(groups[keys[i]].key, groups[keys[j]].key)
	})

	out := &Table{Type: dissolvedType(t.Type)}
	for _, f := range t.Fields {
		if f.Name != by && f.IsNumeric() {
			switch agg {
			case AggCount:
				f = IntField(f.Name)
			case AggMean:
				f = FloatField(f.Name)
			}
		}
		out.Fields = append(out.Fields, f)
	}

	for _, k := range keys {
		g := groups[k]
		attrs := make(map[string]any, len(t.Fields))
		for _, f := range t.Fields {
			switch {
			case f.Name == by:
				attrs[f.Name] = g.key
			case f.IsNumeric():
				attrs[f.Name] = aggregate(g.rows, f.Name, agg)
			default:
				attrs[f.Name] = g.rows[0].Attrs[f.Name]
			}
		}
		shapes := make([]shp.Shape, 0, len(g.rows))
		for _, r := range g.rows {
			shapes = append(shapes, r.Shape)
		}
		out.Rows = append(out.Rows, Row{Shape: mergeShapes(out.Type, shapes), Attrs: attrs})
	}
	return out, nil
}

// Clone copies the table; shapes are shared.
func (t *Table) Clone() *Table {
	out := &Table{
		Type:   t.Type,
		Fields: append([]Field(nil), t.Fields...),
		Rows:   make([]Row, len(t.Rows)),
	}
	for i, r := range t.Rows {
		attrs := make(map[string]any, len(r.Attrs))
		for k, v := range r.Attrs {
			attrs[k] = v
		}
		out.Rows[i] = Row{Shape: r.Shape, Attrs: attrs}
	}
	return out
}

func (t *Table) row(i int) map[string]any {
	if t.Rows[i].Attrs == nil {
		t.Rows[i].Attrs = map[string]any{}
	}
	return t.Rows[i].Attrs
}

func fieldFor(name string, v any) Field {
	switch v.(type) {
	case int, int32, int64, uint, bool:
		return IntField(name)
	case float32, float64:
		return FloatField(name)
	}
	return StringField(name)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}

func aggregate(rows []Row, col string, agg Agg) any {
	if agg == AggFirst {
		return rows[0].Attrs[col]
	}
	var (
		n      int
		sum    float64
		lo, hi = math.Inf(1), math.Inf(-1)
	)
	for _, r := range rows {
		v, ok := toFloat(r.Attrs[col])
		if !ok {
			continue
		}
		n++
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if agg == AggCount {
		return n
	}
	if n == 0 {
		return nil
	}
	switch agg {
	case AggSum:
		return sum
	case AggMin:
		return lo
	case AggMax:
		return hi
	}
	return sum / float64(n)
}

func lessKey(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa < fb
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func dissolvedType(t shp.ShapeType) shp.ShapeType {
	if t == shp.POINT {
		return shp.MULTIPOINT
	}
	return t
}

// mergeShapes concatenates the parts of shapes into one shape of type t.
func mergeShapes(t shp.ShapeType, shapes []shp.Shape) shp.Shape {
	switch t {
	case shp.MULTIPOINT:
		var pts []shp.Point
		for _, s := range shapes {
			switch g := s.(type) {
			case *shp.Point:
				pts = append(pts, *g)
			case *shp.MultiPoint:
				pts = append(pts, g.Points...)
			}
		}
		return &shp.MultiPoint{
			Box:       shp.BBoxFromPoints(pts),
			NumPoints: int32(len(pts)),
			Points:    pts,
		}
	case shp.POLYLINE, shp.POLYGON:
		var parts [][]shp.Point
		for _, s := range shapes {
			var pl *shp.PolyLine
			switch g := s.(type) {
			case *shp.PolyLine:
				pl = g
			case *shp.Polygon:
				p := shp.PolyLine(*g)
				pl = &p
			default:
				continue
			}
			parts = append(parts, splitParts(pl)...)
		}
		merged := shp.NewPolyLine(parts)
		if t == shp.POLYGON {
			p := shp.Polygon(*merged)
			return &p
		}
		return merged
	}
	if len(shapes) > 0 {
		return shapes[0]
	}
	return &shp.Null{}
}

func splitParts(pl *shp.PolyLine) [][]shp.Point {
	parts := make([][]shp.Point, 0, len(pl.Parts))
	for i, start := range pl.Parts {
		end := int32(len(pl.Points))
		if i+1 < len(pl.Parts) {
			end = pl.Parts[i+1]
		}
		parts = append(parts, pl.Points[start:end])
	}
	return parts
}
