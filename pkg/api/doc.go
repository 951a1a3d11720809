// Package api contains the core types shared by the toolbox, its step
// executor and the persistence layer.
//
// Most users interact with the root nrip package, which re-exports the
// types below. The api package is intended for custom steps, alternative
// engines and tests.
//
// # Workflows
//
// A WorkflowDefinition is an ordered chain of StepDefinition values over
// named artifacts. Sources are the caller's input files; each step reads
// sources or the outputs of earlier steps by logical name and writes exactly
// one output Artifact:
//
//	def := api.WorkflowDefinition{
//		Name:    "slope",
//		Sources: []api.Artifact{{Name: "dem", Path: "dem.tif", Kind: api.KindRaster, Lifetime: api.LifetimeFinal}},
//		Steps: []api.StepDefinition{{
//			Name:   "slope",
//			Inputs: []string{"dem"},
//			Output: api.Artifact{Name: "slope", Path: "slope.tif", Kind: api.KindRaster, Lifetime: api.LifetimeFinal},
//			Fn:     slopeFn,
//		}},
//	}
//
// # Artifacts
//
// An Artifact has a Kind (raster, points, lines or polygons) and a
// Lifetime. Temporary artifacts are deleted when the run finishes unless
// the definition retains them; Final artifacts always survive. A
// FailurePolicy decides whether temporaries are kept or removed when a step
// fails.
//
// # Errors
//
// Failures are reported with sentinel errors checked via errors.Is:
// ErrDirectoryUnavailable, ErrInvalidThreshold, ErrInvalidThresholdRange,
// ErrExternalOperation, ErrArtifactNotFound, ErrDuplicateArtifact and
// ErrUnknownKind. A failing step is wrapped in *StepError naming the
// workflow, step and position.
//
// # Observability
//
// Observer receives workflow, step and artifact callbacks. NoopObserver,
// CompositeObserver, LoggingObserver (log/slog) and BasicMetrics are
// provided. Runners that keep a ledger also implement HistoryReader.
package api
