package api

import "context"

// Runner executes workflow definitions against one session and keeps a
// record of the runs.
type Runner interface {
	// Run validates def, executes its steps in order and finalizes the
	// temporaries. A run that started returns its instance even on failure;
	// an invalid definition returns a nil instance.
	Run(ctx context.Context, def WorkflowDefinition) (*WorkflowInstance, error)

	// GetInstance looks up a recorded run by ID.
	GetInstance(ctx context.Context, id string) (*WorkflowInstance, error)

	// ListInstances returns recorded runs matching opts.
	// If options are zero-valued, all runs are returned.
	ListInstances(ctx context.Context, opts InstanceListOptions) ([]*WorkflowInstance, error)
}

// HistoryReader allows reading a run's event history.
type HistoryReader interface {
	// ListEvents returns all events for a run in chronological order.
	ListEvents(ctx context.Context, instanceID string) ([]WorkflowEvent, error)

	// ArtifactHistory returns the events of every run that wrote or
	// removed path, oldest first.
	ArtifactHistory(ctx context.Context, path string) ([]WorkflowEvent, error)
}
