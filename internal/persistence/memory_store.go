package persistence

import (
	"sync"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe InstanceStore backed by a map.
// Instances are copied on the way in and out.
type InMemoryStore struct {
	mu        sync.RWMutex
	order     []string
	instances map[string]api.WorkflowInstance
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		instances: make(map[string]api.WorkflowInstance),
	}
}

var _ InstanceStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveInstance(inst *api.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.ID]; !ok {
		s.order = append(s.order, inst.ID)
	}
	s.instances[inst.ID] = snapshot(inst)
	return nil
}

func (s *InMemoryStore) UpdateInstance(inst *api.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.ID]; !ok {
		return ErrInstanceNotFound
	}

	s.instances[inst.ID] = snapshot(inst)
	return nil
}

func (s *InMemoryStore) GetInstance(id string) (*api.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return &inst, nil
}

func (s *InMemoryStore) ListInstances(filter InstanceFilter) ([]*api.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.WorkflowInstance
	for _, id := range s.order {
		inst := s.instances[id]
		if filter.WorkflowName != "" && inst.Name != filter.WorkflowName {
			continue
		}
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		result = append(result, &inst)
	}
	return result, nil
}

func snapshot(inst *api.WorkflowInstance) api.WorkflowInstance {
	c := *inst
	c.Artifacts = append([]api.Artifact(nil), inst.Artifacts...)
	c.Removed = append([]string(nil), inst.Removed...)
	return c
}
