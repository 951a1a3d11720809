package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
)

type fakeEngine struct {
	wd      string
	verbose bool
	sets    int
}

func (f *fakeEngine) WorkingDir() string { return f.wd }
func (f *fakeEngine) SetWorkingDir(dir string) error {
	f.wd = dir
	f.sets++
	return nil
}
func (f *fakeEngine) SetVerbose(v bool) { f.verbose = v }

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	return dir
}

func getwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	return wd
}

func TestNew_DefaultsToProcessDirectory(t *testing.T) {
	dir := tempDir(t)
	t.Chdir(dir)

	eng := &fakeEngine{}
	s, err := New("", eng, WithVerbose(true))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.Dir() != dir {
		t.Fatalf("expected dir %q, got %q", dir, s.Dir())
	}
	if eng.wd != dir {
		t.Fatalf("expected engine dir %q, got %q", dir, eng.wd)
	}
	if !eng.verbose {
		t.Fatalf("expected engine verbose")
	}
}

func TestNew_RejectsMissingDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), &fakeEngine{})
	if !errors.Is(err, api.ErrDirectoryUnavailable) {
		t.Fatalf("expected ErrDirectoryUnavailable, got %v", err)
	}
}

func TestCheck_RejectsFile(t *testing.T) {
	dir := tempDir(t)
	t.Chdir(dir)
	s, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	file := filepath.Join(dir, "dem.tif")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := s.SetDir(file); !errors.Is(err, api.ErrDirectoryUnavailable) {
		t.Fatalf("expected ErrDirectoryUnavailable, got %v", err)
	}
	if s.Dir() != dir {
		t.Fatalf("failed SetDir must not move the session, got %q", s.Dir())
	}

	sub := filepath.Join(dir, "gone")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := s.SetDir(sub); err != nil {
		t.Fatalf("SetDir failed: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	if err := os.Remove(sub); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Check(); !errors.Is(err, api.ErrDirectoryUnavailable) {
		t.Fatalf("expected ErrDirectoryUnavailable after removal, got %v", err)
	}
}

func TestEnsure_ConvergesBothDirectories(t *testing.T) {
	dir := tempDir(t)
	other := tempDir(t)
	t.Chdir(other)

	eng := &fakeEngine{}
	s, err := New(dir, eng)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	eng.wd = other

	if err := s.Ensure(); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if got := getwd(t); got != dir {
		t.Fatalf("expected cwd %q, got %q", dir, got)
	}
	if eng.wd != dir {
		t.Fatalf("expected engine dir %q, got %q", dir, eng.wd)
	}
}

func TestScope_RestoresAfterDrift(t *testing.T) {
	dir := tempDir(t)
	other := tempDir(t)
	t.Chdir(dir)

	eng := &fakeEngine{}
	s, err := New(dir, eng)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = s.Scope(func() error {
		if got := getwd(t); got != dir {
			t.Fatalf("expected cwd %q inside scope, got %q", dir, got)
		}
		if err := os.Chdir(other); err != nil {
			return err
		}
		eng.wd = other
		return nil
	})
	if err != nil {
		t.Fatalf("Scope failed: %v", err)
	}
	if got := getwd(t); got != dir {
		t.Fatalf("expected cwd restored to %q, got %q", dir, got)
	}
	if eng.wd != dir {
		t.Fatalf("expected engine dir restored to %q, got %q", dir, eng.wd)
	}
}

func TestScope_RestoresOnErrorAndPanic(t *testing.T) {
	dir := tempDir(t)
	other := tempDir(t)
	t.Chdir(dir)

	eng := &fakeEngine{}
	s, err := New(dir, eng)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	boom := errors.New("tool failed")
	err = s.Scope(func() error {
		_ = os.Chdir(other)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected tool error, got %v", err)
	}
	if got := getwd(t); got != dir {
		t.Fatalf("expected cwd restored after error, got %q", got)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = s.Scope(func() error {
			_ = os.Chdir(other)
			eng.wd = other
			panic("tool crashed")
		})
	}()
	if got := getwd(t); got != dir {
		t.Fatalf("expected cwd restored after panic, got %q", got)
	}
	if eng.wd != dir {
		t.Fatalf("expected engine dir restored after panic, got %q", eng.wd)
	}
}

func TestSetVerbose_ForwardsToEngine(t *testing.T) {
	eng := &fakeEngine{}
	s, err := New(tempDir(t), eng)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.SetVerbose(true)
	if !eng.verbose || !s.Verbose() {
		t.Fatalf("expected verbose on")
	}
	s.SetVerbose(false)
	if eng.verbose {
		t.Fatalf("expected verbose off")
	}
}

func TestResolve(t *testing.T) {
	dir := tempDir(t)
	s, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := s.Resolve("site1_fill.tif"); got != filepath.Join(dir, "site1_fill.tif") {
		t.Fatalf("unexpected resolve: %q", got)
	}
	if got := s.Resolve("/data/dem.tif"); got != "/data/dem.tif" {
		t.Fatalf("unexpected resolve of absolute path: %q", got)
	}
}
