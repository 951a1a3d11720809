package api

import "time"

// EventType identifies a workflow history event.
type EventType string

const (
	EventWorkflowStarted   EventType = "workflow.started"
	EventWorkflowCompleted EventType = "workflow.completed"
	EventWorkflowFailed    EventType = "workflow.failed"

	EventStepStarted   EventType = "step.started"
	EventStepCompleted EventType = "step.completed"
	EventStepFailed    EventType = "step.failed"

	EventArtifactRemoved EventType = "artifact.removed"
)

// WorkflowEvent is one append-only ledger record of a run.
type WorkflowEvent struct {
	InstanceID string
	At         time.Time
	Type       EventType

	WorkflowName string
	Step         int

	// Detail is the step or artifact name, the working directory for
	// workflow.started, or the error text of a failure.
	Detail string

	// Artifact is the path a step wrote or a cleanup removed, relative to
	// the working directory.
	Artifact string
}
