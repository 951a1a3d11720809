package persistence

import (
	"errors"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
)

// ErrInstanceNotFound is returned when a workflow instance is not found.
var ErrInstanceNotFound = errors.New("instance not found")

// InstanceFilter is used to select instances from the store.
// Empty string / zero status mean "no filter" for that field.
type InstanceFilter struct {
	WorkflowName string
	Status       api.Status
}

// InstanceStore records one row per workflow run.
type InstanceStore interface {
	SaveInstance(inst *api.WorkflowInstance) error
	UpdateInstance(inst *api.WorkflowInstance) error
	GetInstance(id string) (*api.WorkflowInstance, error)
	// ListInstances returns matching instances, oldest first.
	ListInstances(filter InstanceFilter) ([]*api.WorkflowInstance, error)
}
