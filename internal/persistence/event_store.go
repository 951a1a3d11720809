package persistence

import (
	"context"
	"sync"

	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
)

// EventStore is the append-only step history of workflow runs.
type EventStore interface {
	AppendEvent(ctx context.Context, ev api.WorkflowEvent) error
	// ListEvents returns one run's events in append order.
	ListEvents(ctx context.Context, instanceID string) ([]api.WorkflowEvent, error)
	// ArtifactHistory returns the events of every run that wrote or removed
	// path, in append order.
	ArtifactHistory(ctx context.Context, path string) ([]api.WorkflowEvent, error)
}

// NoopEventStore discards all events.
type NoopEventStore struct{}

func (NoopEventStore) AppendEvent(context.Context, api.WorkflowEvent) error { return nil }
func (NoopEventStore) ListEvents(context.Context, string) ([]api.WorkflowEvent, error) {
	return nil, nil
}
func (NoopEventStore) ArtifactHistory(context.Context, string) ([]api.WorkflowEvent, error) {
	return nil, nil
}

// InMemoryEventStore keeps every event of the process in one log.
type InMemoryEventStore struct {
	mu  sync.RWMutex
	log []api.WorkflowEvent
}

var _ EventStore = (*InMemoryEventStore)(nil)

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{}
}

func (s *InMemoryEventStore) AppendEvent(_ context.Context, ev api.WorkflowEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, ev)
	return nil
}

func (s *InMemoryEventStore) ListEvents(_ context.Context, instanceID string) ([]api.WorkflowEvent, error) {
	return s.filter(func(ev api.WorkflowEvent) bool { return ev.InstanceID == instanceID }), nil
}

func (s *InMemoryEventStore) ArtifactHistory(_ context.Context, path string) ([]api.WorkflowEvent, error) {
	if path == "" {
		return nil, nil
	}
	return s.filter(func(ev api.WorkflowEvent) bool { return ev.Artifact == path }), nil
}

func (s *InMemoryEventStore) filter(keep func(api.WorkflowEvent) bool) []api.WorkflowEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []api.WorkflowEvent
	for _, ev := range s.log {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}
