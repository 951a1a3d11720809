package vector

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
)

// Library reads and writes feature tables.
type Library interface {
	Read(path string) (*Table, error)
	Write(t *Table, path string) error
}

// dBASE column names are limited to ten bytes.
const maxFieldName = 10

// Shapefiles is a Library over ESRI shapefiles.
type Shapefiles struct{}

var _ Library = Shapefiles{}

// Read loads every feature and attribute of the shapefile at path.
func (Shapefiles) Read(path string) (*Table, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, api.NewExternalOperationError("vector.read", err, path)
	}
	defer r.Close()

	t := &Table{Type: r.GeometryType}
	for _, f := range r.Fields() {
		t.Fields = append(t.Fields, Field{
			Name:      f.String(),
			Type:      FieldType(f.Fieldtype),
			Size:      f.Size,
			Precision: f.Precision,
		})
	}

	for r.Next() {
		n, shape := r.Shape()
		attrs := make(map[string]any, len(t.Fields))
		for i, f := range t.Fields {
			attrs[f.Name] = parseValue(f, r.ReadAttribute(n, i))
		}
		t.Rows = append(t.Rows, Row{Shape: shape, Attrs: attrs})
	}
	if err := r.Err(); err != nil {
		return nil, api.NewExternalOperationError("vector.read", err, path)
	}
	return t, nil
}

// Write replaces the shapefile at path with t. Attributes that are not
// declared in t.Fields, such as joined geometry, are not written.
func (Shapefiles) Write(t *Table, path string) error {
	for _, f := range t.Fields {
		if len(f.Name) > maxFieldName {
			return api.NewExternalOperationError("vector.write",
				fmt.Errorf("field name %q exceeds %d bytes", f.Name, maxFieldName), path)
		}
	}

	w, err := shp.Create(path, t.Type)
	if err != nil {
		return api.NewExternalOperationError("vector.write", err, path)
	}
	defer w.Close()

	fields := make([]shp.Field, len(t.Fields))
	for i, f := range t.Fields {
		fields[i] = toShpField(f)
	}
	if err := w.SetFields(fields); err != nil {
		return api.NewExternalOperationError("vector.write", err, path)
	}

	for _, r := range t.Rows {
		shape := r.Shape
		if shape == nil {
			shape = &shp.Null{}
		}
		row := int(w.Write(shape))
		for i, f := range t.Fields {
			v, ok := dbfValue(f, r.Attrs[f.Name])
			if !ok {
				continue
			}
			if err := w.WriteAttribute(row, i, v); err != nil {
				return api.NewExternalOperationError("vector.write",
					fmt.Errorf("row %d field %s: %w", row, f.Name, err), path)
			}
		}
	}
	return nil
}

// Copy reads src, applies edit and writes the result to dst. The
// projection and code page sidecars of src go along unchanged.
func Copy(lib Library, src, dst string, edit func(*Table) error) error {
	t, err := lib.Read(src)
	if err != nil {
		return err
	}
	if edit != nil {
		if err := edit(t); err != nil {
			return err
		}
	}
	if err := lib.Write(t, dst); err != nil {
		return err
	}
	return copySidecars(src, dst)
}

var carriedSidecars = []string{".prj", ".cpg"}

func copySidecars(src, dst string) error {
	srcBase := strings.TrimSuffix(src, ".shp")
	dstBase := strings.TrimSuffix(dst, ".shp")
	for _, ext := range carriedSidecars {
		data, err := os.ReadFile(srcBase + ext)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return api.NewExternalOperationError("vector.copy", err, srcBase+ext)
		}
		if err := os.WriteFile(dstBase+ext, data, 0o644); err != nil {
			return api.NewExternalOperationError("vector.copy", err, dstBase+ext)
		}
	}
	return nil
}

func toShpField(f Field) shp.Field {
	switch f.Type {
	case Numeric:
		if f.Precision > 0 {
			return shp.FloatField(f.Name, f.Size, f.Precision)
		}
		return shp.NumberField(f.Name, f.Size)
	case Float:
		return shp.FloatField(f.Name, f.Size, f.Precision)
	}
	size := f.Size
	if size == 0 {
		size = 254
	}
	return shp.StringField(f.Name, size)
}

// dbfValue converts v to one of the types the shapefile writer accepts.
func dbfValue(f Field, v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch f.Type {
	case Numeric:
		if f.Precision == 0 {
			switch x := v.(type) {
			case int:
				return x, true
			case int32:
				return int(x), true
			case int64:
				return int(x), true
			case uint:
				return int(x), true
			case bool:
				if x {
					return 1, true
				}
				return 0, true
			}
		}
		fallthrough
	case Float:
		if fv, ok := toFloat(v); ok {
			return fv, true
		}
		return nil, false
	}
	switch x := v.(type) {
	case string:
		return x, true
	case fmt.Stringer:
		return x.String(), true
	case shp.Shape:
		return nil, false
	}
	return fmt.Sprint(v), true
}

func parseValue(f Field, raw string) any {
	s := strings.Trim(raw, " \t\x00")
	switch f.Type {
	case Numeric, Float:
		if s == "" {
			return nil
		}
		if f.Type == Numeric && f.Precision == 0 {
			if n, err := strconv.Atoi(s); err == nil {
				return n
			}
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
		return nil
	case Logical:
		switch strings.ToUpper(s) {
		case "T", "Y":
			return true
		case "F", "N":
			return false
		}
		return nil
	}
	return s
}

// Kind maps a shapefile geometry type to the artifact kind the engine
// rasterizes it as.
func Kind(t shp.ShapeType) (api.ArtifactKind, error) {
	switch t {
	case shp.POINT, shp.POINTZ, shp.POINTM, shp.MULTIPOINT, shp.MULTIPOINTZ, shp.MULTIPOINTM:
		return api.KindPoints, nil
	case shp.POLYLINE, shp.POLYLINEZ, shp.POLYLINEM:
		return api.KindLines, nil
	case shp.POLYGON, shp.POLYGONZ, shp.POLYGONM, shp.MULTIPATCH:
		return api.KindPolygons, nil
	}
	return "", fmt.Errorf("%w: shape type %d", api.ErrUnknownKind, t)
}
