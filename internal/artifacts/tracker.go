// Package artifacts records the files a workflow creates and deletes the
// temporary ones when the workflow ends.
package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/naming"
)

// Tracker is an ordered registry of artifacts created during one run.
// Relative paths are resolved against root.
type Tracker struct {
	mu      sync.Mutex
	root    string
	logger  *slog.Logger
	order   []string
	byName  map[string]api.Artifact
	removed map[string]bool
}

// NewTracker returns an empty tracker rooted at root.
func NewTracker(root string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		root:    root,
		logger:  logger,
		byName:  make(map[string]api.Artifact),
		removed: make(map[string]bool),
	}
}

// Register records a at creation time.
func (t *Tracker) Register(a api.Artifact) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byName[a.Name]; ok {
		return fmt.Errorf("%w: %s", api.ErrDuplicateArtifact, a.Name)
	}
	t.byName[a.Name] = a
	t.order = append(t.order, a.Name)
	return nil
}

// Lookup returns the artifact registered under name.
func (t *Tracker) Lookup(name string) (api.Artifact, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.byName[name]
	return a, ok
}

// List returns every registered artifact in registration order, including
// ones already removed.
func (t *Tracker) List() []api.Artifact {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]api.Artifact, 0, len(t.order))
	for _, n := range t.order {
		out = append(out, t.byName[n])
	}
	return out
}

// Surviving returns registered artifacts that were not removed.
func (t *Tracker) Surviving() []api.Artifact {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []api.Artifact
	for _, n := range t.order {
		if !t.removed[n] {
			out = append(out, t.byName[n])
		}
	}
	return out
}

// Temporaries returns the temporary artifacts not yet removed.
func (t *Tracker) Temporaries() []api.Artifact {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []api.Artifact
	for _, n := range t.order {
		if a := t.byName[n]; a.Temporary() && !t.removed[n] {
			out = append(out, a)
		}
	}
	return out
}

// Path returns the absolute location of a.
func (t *Tracker) Path(a api.Artifact) string {
	if filepath.IsAbs(a.Path) {
		return a.Path
	}
	return filepath.Join(t.root, a.Path)
}

// Finalize deletes every temporary not named in retain and returns the
// removed artifacts. Files already absent count as removed. Calling it
// again only retries what failed before.
func (t *Tracker) Finalize(retain map[string]bool) ([]api.Artifact, error) {
	var (
		removed []api.Artifact
		errs    []error
	)
	for _, a := range t.Temporaries() {
		if retain[a.Name] {
			continue
		}
		if err := t.Remove(a); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, a)
	}
	return removed, errors.Join(errs...)
}

// Remove deletes a and, for shapefiles, its sidecar files. Missing files
// are not an error.
func (t *Tracker) Remove(a api.Artifact) error {
	var errs []error
	for _, p := range naming.Sidecars(t.Path(a)) {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	t.mu.Lock()
	if _, ok := t.byName[a.Name]; ok {
		t.removed[a.Name] = true
	}
	t.mu.Unlock()

	t.logger.Debug("artifact removed", slog.String("artifact", a.Name), slog.String("path", a.Path))
	return nil
}
