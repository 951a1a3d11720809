// Package engine runs workflow definitions: an ordered chain of external
// operations over named artifacts, executed synchronously inside one
// session.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/siorconsulting/nrip-jamaica-open-source/internal/artifacts"
	"github.com/siorconsulting/nrip-jamaica-open-source/internal/persistence"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/session"
)

// Config describes how to construct an Executor.
type Config struct {
	Session     *session.Session
	Persistence persistence.Persistence
	Observer    api.Observer
	Policy      api.FailurePolicy
	Logger      *slog.Logger
}

// Executor is a simple, synchronous, in-process workflow runner.
type Executor struct {
	session   *session.Session
	instances persistence.InstanceStore
	events    persistence.EventStore
	observer  api.Observer
	policy    api.FailurePolicy
	logger    *slog.Logger
}

var (
	_ api.Runner        = (*Executor)(nil)
	_ api.HistoryReader = (*Executor)(nil)
)

// New creates an Executor. A zero Persistence keeps runs in memory only.
func New(cfg Config) *Executor {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	inst := cfg.Persistence.Instances
	if inst == nil {
		inst = persistence.NewInMemoryStore()
	}
	ev := cfg.Persistence.Events
	if ev == nil {
		ev = persistence.NoopEventStore{}
	}
	policy := cfg.Policy
	if policy == "" {
		policy = api.FailureKeep
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		session:   cfg.Session,
		instances: inst,
		events:    ev,
		observer:  obs,
		policy:    policy,
		logger:    logger,
	}
}

// Session returns the session the executor runs steps in.
func (e *Executor) Session() *session.Session { return e.session }

// GetInstance returns a recorded run.
func (e *Executor) GetInstance(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	inst, err := e.instances.GetInstance(id)
	if err != nil {
		if errors.Is(err, persistence.ErrInstanceNotFound) {
			return nil, fmt.Errorf("instance not found: %s", id)
		}
		return nil, err
	}
	return inst, nil
}

// ListInstances returns recorded runs matching opts.
func (e *Executor) ListInstances(ctx context.Context, opts api.InstanceListOptions) ([]*api.WorkflowInstance, error) {
	return e.instances.ListInstances(persistence.InstanceFilter{
		WorkflowName: opts.WorkflowName,
		Status:       opts.Status,
	})
}

// ListEvents returns the history of one run.
func (e *Executor) ListEvents(ctx context.Context, id string) ([]api.WorkflowEvent, error) {
	return e.events.ListEvents(ctx, id)
}

// ArtifactHistory returns every recorded event naming path.
func (e *Executor) ArtifactHistory(ctx context.Context, path string) ([]api.WorkflowEvent, error) {
	return e.events.ArtifactHistory(ctx, path)
}

// Run validates def and executes its steps in order. The first failing
// step stops the chain; its error is returned as *api.StepError. On
// success every temporary not retained is deleted.
func (e *Executor) Run(ctx context.Context, def api.WorkflowDefinition) (*api.WorkflowInstance, error) {
	if e.session == nil {
		return nil, errors.New("engine: no session configured")
	}
	if err := Validate(def, e.session.Dir()); err != nil {
		return nil, err
	}

	inst := &api.WorkflowInstance{
		ID:        uuid.NewString(),
		Name:      def.Name,
		Status:    api.StatusInitialized,
		WorkDir:   e.session.Dir(),
		StartedAt: time.Now(),
	}
	if err := e.instances.SaveInstance(inst); err != nil {
		return inst, fmt.Errorf("record run: %w", err)
	}

	tracker := artifacts.NewTracker(inst.WorkDir, e.logger)

	if err := e.session.Check(); err != nil {
		return e.fail(ctx, def, inst, tracker, err)
	}

	inst.Status = api.StatusExecuting
	_ = e.instances.UpdateInstance(inst)
	e.observer.OnWorkflowStart(ctx, inst)
	e.appendEvent(ctx, inst, api.EventWorkflowStarted, -1, inst.WorkDir, "")

	sources := make(map[string]api.Artifact, len(def.Sources))
	for _, s := range def.Sources {
		sources[s.Name] = s
	}

	for i, step := range def.Steps {
		inst.CurrentStep = i
		_ = e.instances.UpdateInstance(inst)

		if err := ctx.Err(); err != nil {
			return e.fail(ctx, def, inst, tracker, e.stepError(def, step, i, err))
		}

		sc := &api.StepContext{
			Workflow: def.Name,
			Step:     step.Name,
			Index:    i,
			Output:   step.Output,
			Params:   step.Params,
		}
		for _, name := range step.Inputs {
			a, err := e.resolveInput(name, sources, tracker)
			if err != nil {
				return e.fail(ctx, def, inst, tracker, e.stepError(def, step, i, err))
			}
			sc.Inputs = append(sc.Inputs, a)
		}

		// Registered before the call so a partial output is still cleaned up.
		if err := tracker.Register(step.Output); err != nil {
			return e.fail(ctx, def, inst, tracker, e.stepError(def, step, i, err))
		}

		startTime := time.Now()
		e.observer.OnStepStart(ctx, inst, step.Name, i)
		e.appendEvent(ctx, inst, api.EventStepStarted, i, step.Name, "")

		err := e.session.Scope(func() error {
			return step.Fn(ctx, sc)
		})

		e.observer.OnStepCompleted(ctx, inst, step.Name, i, err, time.Since(startTime))
		if err != nil {
			e.appendEvent(ctx, inst, api.EventStepFailed, i, err.Error(), step.Output.Path)
			return e.fail(ctx, def, inst, tracker, e.stepError(def, step, i, err))
		}
		e.appendEvent(ctx, inst, api.EventStepCompleted, i, step.Name, step.Output.Path)
	}

	inst.CurrentStep = len(def.Steps)

	if !def.KeepTemporaries {
		if err := e.finalize(ctx, inst, tracker, def.RetainSet()); err != nil {
			inst.Artifacts = tracker.Surviving()
			return e.fail(ctx, def, inst, nil, fmt.Errorf("cleanup: %w", err))
		}
	}

	inst.Artifacts = tracker.Surviving()
	inst.Status = api.StatusCompleted
	inst.FinishedAt = time.Now()
	_ = e.instances.UpdateInstance(inst)

	e.observer.OnWorkflowCompleted(ctx, inst)
	e.appendEvent(ctx, inst, api.EventWorkflowCompleted, inst.CurrentStep, "", "")

	return inst, nil
}

func (e *Executor) resolveInput(name string, sources map[string]api.Artifact, tracker *artifacts.Tracker) (api.Artifact, error) {
	if a, ok := sources[name]; ok {
		return a, nil
	}
	a, ok := tracker.Lookup(name)
	if !ok {
		return api.Artifact{}, fmt.Errorf("%w: %s", api.ErrArtifactNotFound, name)
	}
	if _, err := os.Stat(tracker.Path(a)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return api.Artifact{}, fmt.Errorf("%w: %s was not produced (%s)", api.ErrArtifactNotFound, name, a.Path)
		}
		return api.Artifact{}, err
	}
	return a, nil
}

func (e *Executor) stepError(def api.WorkflowDefinition, step api.StepDefinition, i int, err error) error {
	return &api.StepError{Workflow: def.Name, Step: step.Name, Index: i, Err: err}
}

// finalize removes every temporary not in retain and records each removal.
func (e *Executor) finalize(ctx context.Context, inst *api.WorkflowInstance, tracker *artifacts.Tracker, retain map[string]bool) error {
	removed, err := tracker.Finalize(retain)
	for _, a := range removed {
		inst.Removed = append(inst.Removed, a.Path)
		e.observer.OnArtifactRemoved(ctx, inst, a)
		e.appendEvent(ctx, inst, api.EventArtifactRemoved, -1, a.Name, a.Path)
	}
	return err
}

// fail marks inst failed and applies the failure policy to the temporaries
// registered so far. A nil tracker skips the policy.
func (e *Executor) fail(ctx context.Context, def api.WorkflowDefinition, inst *api.WorkflowInstance, tracker *artifacts.Tracker, err error) (*api.WorkflowInstance, error) {
	if tracker != nil {
		if e.policy == api.FailureCleanup && !def.KeepTemporaries {
			if cerr := e.finalize(ctx, inst, tracker, def.RetainSet()); cerr != nil {
				e.logger.WarnContext(ctx, "cleanup after failure incomplete",
					slog.String("instance_id", inst.ID), slog.Any("error", cerr))
			}
		}
		inst.Artifacts = tracker.Surviving()
	}

	inst.Status = api.StatusFailed
	inst.Err = err
	inst.FinishedAt = time.Now()
	_ = e.instances.UpdateInstance(inst)

	e.observer.OnWorkflowFailed(ctx, inst, err)
	e.appendEvent(ctx, inst, api.EventWorkflowFailed, inst.CurrentStep, err.Error(), "")
	return inst, err
}

func (e *Executor) appendEvent(ctx context.Context, inst *api.WorkflowInstance, typ api.EventType, step int, detail, artifact string) {
	_ = e.events.AppendEvent(ctx, api.WorkflowEvent{
		InstanceID:   inst.ID,
		At:           time.Now(),
		Type:         typ,
		WorkflowName: inst.Name,
		Step:         step,
		Detail:       detail,
		Artifact:     artifact,
	})
}
