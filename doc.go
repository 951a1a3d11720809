// Package nrip composes multi-step geospatial workflows over WhiteboxTools
// and a shapefile table library.
//
// The toolbox never reads rasters itself. Every workflow threads one working
// directory through an ordered chain of external operations, names each
// intermediate file deterministically, builds the conditional statements
// handed to the engine, and decides which files survive.
//
// # Core Concepts
//
// The programming model is small:
//
//  1. Toolbox
//  2. FlowBuilder
//  3. StepFunc
//  4. Artifact
//
// # Toolbox
//
// A Toolbox owns exactly one session: a working directory, the engine
// pointed at it and the verbose flag. It provides the fixed pipelines:
//
//   - HydrologicalRouting, ClipByElevation
//   - FloodHazardAreas, SteepAreas
//   - InundationExtents, InundationExtentsBetween
//   - DistanceFrom, HotspotsFrom, ZonalStatistics
//   - Intersect, InterpolatePoints, SummarizeWithin
//
// Before every step the session directory is asserted on both the process
// and the engine, so a tool that changes directory cannot leak the change
// into the next step. Runs on one Toolbox are serialised; use one Toolbox
// per directory, or the nrip batch command, to run workflows side by side.
//
// # FlowBuilder
//
// FlowBuilder declares a workflow as ordered steps over named artifacts:
//
//	nrip.Flow("buffered-slope").
//	    Source("dem", "dem.tif", nrip.KindRaster).
//	    Step("slope", nrip.Temporary("slope", "slope.tif", nrip.KindRaster), nrip.Unary(eng.Slope), "dem").
//	    Step("buffer", nrip.Final("buffer", "buffer.tif", nrip.KindRaster), nrip.BufferStep(eng, 2), "slope")
//
// Inputs must name a source or an earlier step, so a definition can never
// read an artifact before it exists. Toolbox.Run validates the chain before
// any tool is invoked.
//
// # Artifacts
//
// Temporary artifacts are removed when the run completes, shapefiles
// together with their .shx, .dbf, .prj and .cpg sidecars. Retain and
// KeepTemporaries keep selected or all of them. When a step fails, the
// FailurePolicy decides whether the intermediates written so far stay on
// disk (FailureKeep, the default) or are removed (FailureCleanup).
//
// # Ledger
//
// WithSQLiteLedger records every run and its step history in a SQLite
// database outside the working directory. Toolbox.Instances and
// Toolbox.Events read it back.
//
// For runnable programs, see the /examples directory and cmd/nrip.
package nrip
