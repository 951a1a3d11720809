package nrip

import (
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/expr"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/geoproc"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/vector"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	WorkflowDefinition   = api.WorkflowDefinition
	WorkflowInstance     = api.WorkflowInstance
	WorkflowEvent        = api.WorkflowEvent
	InstanceListOptions  = api.InstanceListOptions
	StepDefinition       = api.StepDefinition
	StepContext          = api.StepContext
	StepFunc             = api.StepFunc
	Artifact             = api.Artifact
	ArtifactKind         = api.ArtifactKind
	Lifetime             = api.Lifetime
	FailurePolicy        = api.FailurePolicy
	Status               = api.Status
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
	StepError            = api.StepError

	Engine        = geoproc.Engine
	Stat          = geoproc.Stat
	Op            = expr.Op
	VectorTable   = vector.Table
	Agg           = vector.Agg
	VectorLibrary = vector.Library
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export status values and enumerations for convenience.

const (
	StatusInitialized = api.StatusInitialized
	StatusExecuting   = api.StatusExecuting
	StatusCompleted   = api.StatusCompleted
	StatusFailed      = api.StatusFailed

	KindRaster   = api.KindRaster
	KindPoints   = api.KindPoints
	KindLines    = api.KindLines
	KindPolygons = api.KindPolygons

	FailureKeep    = api.FailureKeep
	FailureCleanup = api.FailureCleanup

	BetweenIncExc = expr.BetweenIncExc
	BetweenExcInc = expr.BetweenExcInc

	StatMean   = geoproc.StatMean
	StatMedian = geoproc.StatMedian
	StatMin    = geoproc.StatMin
	StatMax    = geoproc.StatMax
	StatRange  = geoproc.StatRange
	StatStdDev = geoproc.StatStdDev
	StatTotal  = geoproc.StatTotal

	AggMean  = vector.AggMean
	AggSum   = vector.AggSum
	AggMin   = vector.AggMin
	AggMax   = vector.AggMax
	AggFirst = vector.AggFirst
	AggCount = vector.AggCount
)

// Re-export the error taxonomy so callers can use errors.Is without
// importing pkg/api.

var (
	ErrDirectoryUnavailable  = api.ErrDirectoryUnavailable
	ErrInvalidThreshold      = api.ErrInvalidThreshold
	ErrInvalidThresholdRange = api.ErrInvalidThresholdRange
	ErrExternalOperation     = api.ErrExternalOperation
	ErrArtifactNotFound      = api.ErrArtifactNotFound
	ErrDuplicateArtifact     = api.ErrDuplicateArtifact
	ErrUnknownKind           = api.ErrUnknownKind
)
