package nrip

import (
	"fmt"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
)

// FlowBuilder provides a fluent API for declaring a workflow as an ordered
// chain of steps over named artifacts:
//
//	flow := nrip.Flow("steep-areas").
//	    Source("dem", "dem.tif", nrip.KindRaster).
//	    Step("slope", nrip.Temporary("slope", "site1_slope.tif", nrip.KindRaster),
//	        nrip.Unary(eng.Slope), "dem").
//	    Step("mask", nrip.Final("mask", "site1_slope_setnull.tif", nrip.KindRaster),
//	        nrip.ClassifyStep(eng, cls), "slope")
//
//	res, err := tb.Run(ctx, flow.Definition())
type FlowBuilder struct {
	def api.WorkflowDefinition
}

// Flow creates a new workflow builder with the given name.
func Flow(name string) *FlowBuilder {
	if name == "" {
		panic("nrip: workflow name must not be empty")
	}
	return &FlowBuilder{
		def: api.WorkflowDefinition{
			Name:  name,
			Steps: make([]api.StepDefinition, 0),
		},
	}
}

// Name returns the workflow name.
func (b *FlowBuilder) Name() string {
	return b.def.Name
}

// Definition returns the underlying WorkflowDefinition.
func (b *FlowBuilder) Definition() WorkflowDefinition {
	return b.def
}

// Source declares a caller-supplied input. Sources are never deleted.
func (b *FlowBuilder) Source(name, path string, kind ArtifactKind) *FlowBuilder {
	if name == "" {
		panic("nrip: source name must not be empty")
	}
	b.def.Sources = append(b.def.Sources, api.Artifact{
		Name:     name,
		Path:     path,
		Kind:     kind,
		Lifetime: api.LifetimeFinal,
	})
	return b
}

// Step appends a step producing out from the named inputs.
func (b *FlowBuilder) Step(name string, out Artifact, fn StepFunc, inputs ...string) *FlowBuilder {
	return b.StepWithParams(name, out, fn, nil, inputs...)
}

// StepWithParams is Step with parameters recorded on the step context.
func (b *FlowBuilder) StepWithParams(name string, out Artifact, fn StepFunc, params map[string]any, inputs ...string) *FlowBuilder {
	if name == "" {
		panic("nrip: step name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("nrip: step %q has nil function", name))
	}

	b.def.Steps = append(b.def.Steps, api.StepDefinition{
		Name:   name,
		Inputs: append([]string(nil), inputs...),
		Output: out,
		Params: params,
		Fn:     fn,
	})
	return b
}

// Retain keeps the named temporaries after completion.
func (b *FlowBuilder) Retain(names ...string) *FlowBuilder {
	b.def.Retain = append(b.def.Retain, names...)
	return b
}

// KeepTemporaries disables finalization entirely when keep is true.
func (b *FlowBuilder) KeepTemporaries(keep bool) *FlowBuilder {
	b.def.KeepTemporaries = keep
	return b
}

// Temporary declares an artifact deleted at finalization.
func Temporary(name, path string, kind ArtifactKind) Artifact {
	return api.Artifact{Name: name, Path: path, Kind: kind, Lifetime: api.LifetimeTemporary}
}

// Final declares an artifact that survives the run.
func Final(name, path string, kind ArtifactKind) Artifact {
	return api.Artifact{Name: name, Path: path, Kind: kind, Lifetime: api.LifetimeFinal}
}

// Output declares an artifact that is final when keep is true and
// temporary otherwise.
func Output(name, path string, kind ArtifactKind, keep bool) Artifact {
	if keep {
		return Final(name, path, kind)
	}
	return Temporary(name, path, kind)
}
