package api

import (
	"context"
	"fmt"
	"time"
)

// Status represents the lifecycle state of a workflow instance.
type Status string

const (
	StatusInitialized Status = "INITIALIZED"
	StatusExecuting   Status = "EXECUTING"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
)

// ArtifactKind identifies the storage format of an artifact.
type ArtifactKind string

const (
	KindRaster   ArtifactKind = "raster"
	KindPoints   ArtifactKind = "vector_point"
	KindLines    ArtifactKind = "vector_line"
	KindPolygons ArtifactKind = "vector_polygon"
)

// IsVector reports whether k is stored as a vector file.
func (k ArtifactKind) IsVector() bool {
	return k == KindPoints || k == KindLines || k == KindPolygons
}

// ParseKind maps user-facing names ("raster", "points", "lines",
// "polygons", or the canonical constants) to an ArtifactKind.
func ParseKind(s string) (ArtifactKind, error) {
	switch s {
	case string(KindRaster):
		return KindRaster, nil
	case "points", "point", string(KindPoints):
		return KindPoints, nil
	case "lines", "line", string(KindLines):
		return KindLines, nil
	case "polygons", "polygon", string(KindPolygons):
		return KindPolygons, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Lifetime decides whether an artifact survives workflow completion.
type Lifetime string

const (
	LifetimeTemporary Lifetime = "temporary"
	LifetimeFinal     Lifetime = "final"
)

// Artifact is a named raster or vector file produced or consumed by a step.
// Path is the file name relative to the session working directory, or an
// absolute path for caller-supplied sources.
type Artifact struct {
	Name     string
	Path     string
	Kind     ArtifactKind
	Lifetime Lifetime
}

// Temporary reports whether the artifact is removed at finalization.
func (a Artifact) Temporary() bool {
	return a.Lifetime == LifetimeTemporary
}

// FailurePolicy decides what happens to temporaries registered before a
// step failed.
type FailurePolicy string

const (
	// FailureKeep leaves intermediates on disk for inspection.
	FailureKeep FailurePolicy = "keep"
	// FailureCleanup removes the temporaries registered so far.
	FailureCleanup FailurePolicy = "cleanup"
)

// ParseFailurePolicy accepts "keep" or "cleanup"; empty means keep.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", FailureKeep:
		return FailureKeep, nil
	case FailureCleanup:
		return FailureCleanup, nil
	}
	return "", fmt.Errorf("unknown failure policy %q", s)
}

// StepContext is handed to a StepFunc with every artifact already resolved.
type StepContext struct {
	Workflow string
	Step     string
	Index    int
	Inputs   []Artifact
	Output   Artifact
	Params   map[string]any
}

// Input returns the path of the i-th declared input.
func (c *StepContext) Input(i int) string {
	return c.Inputs[i].Path
}

// StepFunc performs one external operation. It runs with the session
// directory asserted and must write its result to c.Output.Path.
type StepFunc func(ctx context.Context, c *StepContext) error

// StepDefinition describes one operation in a workflow.
//
// Inputs reference sources or outputs of earlier steps by logical name.
type StepDefinition struct {
	Name   string
	Inputs []string
	Output Artifact
	Params map[string]any
	Fn     StepFunc
}

// WorkflowDefinition is an ordered chain of steps over named artifacts.
type WorkflowDefinition struct {
	Name    string
	Sources []Artifact
	Steps   []StepDefinition

	// Retain lists temporary artifacts to keep anyway.
	Retain []string

	// KeepTemporaries disables deletion of every temporary.
	KeepTemporaries bool
}

// RetainSet returns Retain as a set.
func (d WorkflowDefinition) RetainSet() map[string]bool {
	set := make(map[string]bool, len(d.Retain))
	for _, name := range d.Retain {
		set[name] = true
	}
	return set
}

// WorkflowInstance holds the result of a run.
type WorkflowInstance struct {
	ID     string
	Name   string
	Status Status
	Err    error

	// CurrentStep tracks progress through the workflow steps.
	//   - Before any steps run: 0
	//   - While running step i: i
	//   - After successful completion: len(steps)
	//   - On failure: index of the step that failed
	CurrentStep int

	WorkDir    string
	StartedAt  time.Time
	FinishedAt time.Time

	// Artifacts lists every artifact still on disk after the run.
	Artifacts []Artifact

	// Removed lists the paths deleted during finalization.
	Removed []string
}

// Artifact returns the surviving artifact with the given logical name.
func (i *WorkflowInstance) Artifact(name string) (Artifact, bool) {
	for _, a := range i.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}

// InstanceListOptions controls how instances are listed.
// Zero values mean "no filter" for that field.
type InstanceListOptions struct {
	// WorkflowName, if non-empty, limits results to instances of the given workflow.
	WorkflowName string

	// Status, if non-empty, limits results to instances with the given status.
	Status Status
}
