package engine

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
)

// Validate checks that a definition can run: every step has a function
// and an output, output names are unique, every input names a source or
// the output of an earlier step, and no output overwrites a source or
// another output. Relative paths are compared as resolved against root.
func Validate(def api.WorkflowDefinition, root string) error {
	if def.Name == "" {
		return errors.New("workflow name is required")
	}
	if len(def.Steps) == 0 {
		return errors.New("workflow must have at least one step")
	}

	known := make(map[string]bool, len(def.Sources)+len(def.Steps))
	paths := make(map[string]string, len(def.Steps))
	for _, s := range def.Sources {
		if s.Name == "" || s.Path == "" {
			return fmt.Errorf("workflow %s: source needs a name and a path", def.Name)
		}
		if known[s.Name] {
			return fmt.Errorf("%w: source %s", api.ErrDuplicateArtifact, s.Name)
		}
		known[s.Name] = true
		paths[resolve(root, s.Path)] = s.Name
	}

	for i, step := range def.Steps {
		if step.Name == "" {
			return fmt.Errorf("workflow %s: step %d has no name", def.Name, i)
		}
		if step.Fn == nil {
			return fmt.Errorf("workflow %s: step %q has nil function", def.Name, step.Name)
		}
		if step.Output.Name == "" || step.Output.Path == "" {
			return fmt.Errorf("workflow %s: step %q declares no output", def.Name, step.Name)
		}
		for _, in := range step.Inputs {
			if !known[in] {
				return fmt.Errorf("%w: step %q reads %s before it is produced", api.ErrArtifactNotFound, step.Name, in)
			}
		}
		if known[step.Output.Name] {
			return fmt.Errorf("%w: %s", api.ErrDuplicateArtifact, step.Output.Name)
		}
		out := resolve(root, step.Output.Path)
		if prev, ok := paths[out]; ok {
			return fmt.Errorf("%w: %s would overwrite %s at %s", api.ErrDuplicateArtifact, step.Output.Name, prev, step.Output.Path)
		}
		known[step.Output.Name] = true
		paths[out] = step.Output.Name
	}

	for _, r := range def.Retain {
		if !known[r] {
			return fmt.Errorf("%w: retained %s", api.ErrArtifactNotFound, r)
		}
	}
	return nil
}

func resolve(root, path string) string {
	if root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return filepath.Clean(path)
}
