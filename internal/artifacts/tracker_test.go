package artifacts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func raster(name string, life api.Lifetime) api.Artifact {
	return api.Artifact{Name: name, Path: name + ".tif", Kind: api.KindRaster, Lifetime: life}
}

func TestRegister_RejectsDuplicates(t *testing.T) {
	tr := NewTracker(t.TempDir(), nil)
	if err := tr.Register(raster("fill", api.LifetimeTemporary)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	err := tr.Register(raster("fill", api.LifetimeFinal))
	if !errors.Is(err, api.ErrDuplicateArtifact) {
		t.Fatalf("expected ErrDuplicateArtifact, got %v", err)
	}
}

func TestFinalize_RemovesOnlyTemporaries(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(dir, nil)

	names := []struct {
		name string
		life api.Lifetime
	}{
		{"fill", api.LifetimeTemporary},
		{"fdir", api.LifetimeTemporary},
		{"keepme", api.LifetimeTemporary},
		{"basins_polygon", api.LifetimeFinal},
	}
	for _, n := range names {
		a := raster(n.name, n.life)
		touch(t, filepath.Join(dir, a.Path))
		if err := tr.Register(a); err != nil {
			t.Fatalf("Register(%s): %v", n.name, err)
		}
	}

	removed, err := tr.Finalize(map[string]bool{"keepme": true})
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed, got %d", len(removed))
	}
	for _, gone := range []string{"fill.tif", "fdir.tif"} {
		if exists(filepath.Join(dir, gone)) {
			t.Fatalf("expected %s to be removed", gone)
		}
	}
	for _, kept := range []string{"keepme.tif", "basins_polygon.tif"} {
		if !exists(filepath.Join(dir, kept)) {
			t.Fatalf("expected %s to survive", kept)
		}
	}

	surv := tr.Surviving()
	if len(surv) != 2 || surv[0].Name != "keepme" || surv[1].Name != "basins_polygon" {
		t.Fatalf("unexpected survivors: %+v", surv)
	}
}

func TestFinalize_TwiceIsSafe(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(dir, nil)
	a := raster("facc", api.LifetimeTemporary)
	touch(t, filepath.Join(dir, a.Path))
	_ = tr.Register(a)

	if _, err := tr.Finalize(nil); err != nil {
		t.Fatalf("first Finalize failed: %v", err)
	}
	removed, err := tr.Finalize(nil)
	if err != nil {
		t.Fatalf("second Finalize failed: %v", err)
	}
	if len(removed) != 0 {
		t.Fatalf("expected nothing removed the second time, got %v", removed)
	}
}

func TestRemove_MissingFileIsSuccess(t *testing.T) {
	tr := NewTracker(t.TempDir(), nil)
	a := raster("never_written", api.LifetimeTemporary)
	_ = tr.Register(a)

	if err := tr.Remove(a); err != nil {
		t.Fatalf("Remove of missing file failed: %v", err)
	}
	if err := tr.Remove(a); err != nil {
		t.Fatalf("second Remove failed: %v", err)
	}
	if len(tr.Temporaries()) != 0 {
		t.Fatalf("expected no pending temporaries")
	}
}

func TestRemove_DeletesShapefileSidecars(t *testing.T) {
	dir := t.TempDir()
	tr := NewTracker(dir, nil)
	a := api.Artifact{Name: "zones", Path: "zones_wbt.shp", Kind: api.KindPolygons, Lifetime: api.LifetimeTemporary}

	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj"} {
		touch(t, filepath.Join(dir, "zones_wbt"+ext))
	}
	_ = tr.Register(a)

	if err := tr.Remove(a); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty directory, found %d entries", len(entries))
	}
}

func TestPath_KeepsAbsolute(t *testing.T) {
	tr := NewTracker("/work", nil)
	if got := tr.Path(api.Artifact{Path: "/data/dem.tif"}); got != "/data/dem.tif" {
		t.Fatalf("unexpected path %q", got)
	}
	if got := tr.Path(api.Artifact{Path: "dem.tif"}); got != filepath.Join("/work", "dem.tif") {
		t.Fatalf("unexpected path %q", got)
	}
}
