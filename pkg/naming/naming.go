// Package naming derives deterministic file names for workflow artifacts.
//
// Names are a pure function of their inputs: the same prefix, role, kind
// and qualifiers always yield the same name. No suffixing is done to avoid
// collisions; callers choose a prefix unique to their run.
package naming

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
)

const (
	RasterExt = ".tif"
	VectorExt = ".shp"
)

// shapefile components that travel with a .shp file.
var sidecarExts = []string{".shp", ".shx", ".dbf", ".prj", ".cpg"}

// Extension returns the fixed file extension for kind.
func Extension(kind api.ArtifactKind) string {
	if kind.IsVector() {
		return VectorExt
	}
	return RasterExt
}

// Derive joins prefix, role and the rendered qualifiers with underscores
// and appends the extension for kind. Empty parts are skipped.
//
//	Derive("site1", "facc_setnull", api.KindRaster, 1000.0) == "site1_facc_setnull_1000.0.tif"
func Derive(prefix, role string, kind api.ArtifactKind, qualifiers ...any) string {
	return WithExtension(Base(prefix, role, qualifiers...), kind)
}

// Base is Derive without the extension.
func Base(prefix, role string, qualifiers ...any) string {
	parts := make([]string, 0, 2+len(qualifiers))
	for _, p := range []string{prefix, role} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	for _, q := range qualifiers {
		if s := Format(q); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "_")
}

// WithExtension appends the extension for kind to base.
func WithExtension(base string, kind api.ArtifactKind) string {
	return base + Extension(kind)
}

// Format renders a qualifier independent of locale. Floats always carry a
// decimal point so 2.0 renders as "2.0" and 0.25 as "0.25".
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case float32:
		return formatFloat(float64(x), 32)
	case float64:
		return formatFloat(x, 64)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64, bits int) string {
	s := strconv.FormatFloat(f, 'f', -1, bits)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}

// Sidecars returns every file making up the artifact at path. Rasters are a
// single file; shapefiles carry index, attribute and projection files.
func Sidecars(path string) []string {
	ext := filepath.Ext(path)
	if !strings.EqualFold(ext, VectorExt) {
		return []string{path}
	}
	stem := strings.TrimSuffix(path, ext)
	out := make([]string, 0, len(sidecarExts))
	for _, e := range sidecarExts {
		out = append(out, stem+e)
	}
	return out
}

// KindFromPath guesses the artifact kind from a file extension. Vector
// files report KindPolygons; callers needing a specific geometry say so.
func KindFromPath(path string) (api.ArtifactKind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff", ".dep", ".flt", ".sdat", ".rdc":
		return api.KindRaster, nil
	case ".shp":
		return api.KindPolygons, nil
	}
	return "", fmt.Errorf("%w: %s", api.ErrUnknownKind, path)
}
