package nrip

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/siorconsulting/nrip-jamaica-open-source/internal/engine"
	"github.com/siorconsulting/nrip-jamaica-open-source/internal/persistence"
	"github.com/siorconsulting/nrip-jamaica-open-source/internal/whitebox"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/api"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/geoproc"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/session"
	"github.com/siorconsulting/nrip-jamaica-open-source/pkg/vector"
)

type options struct {
	dir      string
	engine   geoproc.Engine
	binary   string
	vectors  vector.Library
	verbose  bool
	logger   *slog.Logger
	observer api.Observer
	policy   api.FailurePolicy
	ledger   *sql.DB
	cellSize float64
	inMemory bool
}

// Option configures a Toolbox.
type Option func(*options)

// WithWorkingDir sets the session directory. Empty means the process
// working directory.
func WithWorkingDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// WithEngine replaces the WhiteboxTools engine.
func WithEngine(eng geoproc.Engine) Option {
	return func(o *options) { o.engine = eng }
}

// WithWhiteboxBinary sets the path of the whitebox_tools executable used
// when no engine is given.
func WithWhiteboxBinary(path string) Option {
	return func(o *options) { o.binary = path }
}

// WithVectorLibrary replaces the shapefile library.
func WithVectorLibrary(lib vector.Library) Option {
	return func(o *options) { o.vectors = lib }
}

// WithVerbose turns on the engine's verbose output.
func WithVerbose(v bool) Option {
	return func(o *options) { o.verbose = v }
}

// WithLogger sets the logger shared by the session, engine and executor.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver registers an observer for workflow and step callbacks.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithFailurePolicy decides what happens to temporaries when a step fails.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithCellSize sets the resolution used when rasterizing vector inputs.
func WithCellSize(size float64) Option {
	return func(o *options) { o.cellSize = size }
}

// WithSQLiteLedger records every run and its events in db.
// The database must live outside the working directory.
func WithSQLiteLedger(db *sql.DB) Option {
	return func(o *options) { o.ledger = db }
}

// WithInMemoryLedger records runs and events for the life of the toolbox.
func WithInMemoryLedger() Option {
	return func(o *options) { o.inMemory = true }
}

// Toolbox runs geospatial workflows inside one working directory.
//
// Workflows on one toolbox are serialised: the process working directory is
// global, so two workflows can never safely run side by side in one process.
type Toolbox struct {
	mu       sync.Mutex
	session  *session.Session
	engine   geoproc.Engine
	vectors  vector.Library
	exec     *engine.Executor
	logger   *slog.Logger
	cellSize float64
}

// New creates a Toolbox. Without WithEngine it locates whitebox_tools on
// PATH. The working directory must exist and be writable.
func New(opts ...Option) (*Toolbox, error) {
	o := options{
		logger:   slog.Default(),
		policy:   api.FailureKeep,
		cellSize: geoproc.DefaultCellSize,
		vectors:  vector.Shapefiles{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	eng := o.engine
	if eng == nil {
		wopts := []whitebox.Option{whitebox.WithLogger(o.logger), whitebox.WithCellSize(o.cellSize)}
		if o.binary != "" {
			wopts = append(wopts, whitebox.WithBinary(o.binary))
		}
		c, err := whitebox.New(wopts...)
		if err != nil {
			return nil, err
		}
		eng = c
	}

	sess, err := session.New(o.dir, eng, session.WithVerbose(o.verbose), session.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	var store persistence.Persistence
	switch {
	case o.ledger != nil:
		store, err = persistence.NewSQLite(o.ledger)
		if err != nil {
			return nil, err
		}
	case o.inMemory:
		store = persistence.NewInMemory()
	}

	exec := engine.New(engine.Config{
		Session:     sess,
		Persistence: store,
		Observer:    o.observer,
		Policy:      o.policy,
		Logger:      o.logger,
	})

	return &Toolbox{
		session:  sess,
		engine:   eng,
		vectors:  o.vectors,
		exec:     exec,
		logger:   o.logger,
		cellSize: o.cellSize,
	}, nil
}

// Engine returns the geoprocessing engine steps are bound to.
func (t *Toolbox) Engine() geoproc.Engine { return t.engine }

// Vectors returns the vector-table library.
func (t *Toolbox) Vectors() vector.Library { return t.vectors }

// WorkingDir returns the absolute session directory.
func (t *Toolbox) WorkingDir() string { return t.session.Dir() }

// SetWorkingDir re-points the session. It waits for a running workflow.
func (t *Toolbox) SetWorkingDir(dir string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.SetDir(dir)
}

// SetVerbose toggles the engine's verbose output.
func (t *Toolbox) SetVerbose(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.session.SetVerbose(v)
}

// Result describes a finished run.
type Result struct {
	Instance *WorkflowInstance

	// Outputs maps the logical name of every artifact left on disk to its
	// absolute path.
	Outputs map[string]string

	// Removed lists the temporaries deleted, relative to the working
	// directory.
	Removed []string
}

// Path returns the absolute path of a surviving artifact.
func (r *Result) Path(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	p, ok := r.Outputs[name]
	return p, ok
}

// Run executes def in the toolbox session. A failed run still returns a
// Result describing what is left on disk.
func (t *Toolbox) Run(ctx context.Context, def WorkflowDefinition) (*Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	inst, err := t.exec.Run(ctx, def)
	if inst == nil {
		return nil, err
	}
	return newResult(inst), err
}

func newResult(inst *api.WorkflowInstance) *Result {
	res := &Result{
		Instance: inst,
		Outputs:  make(map[string]string, len(inst.Artifacts)),
		Removed:  append([]string(nil), inst.Removed...),
	}
	for _, a := range inst.Artifacts {
		p := a.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(inst.WorkDir, p)
		}
		res.Outputs[a.Name] = p
	}
	return res
}

// Instance fetches a recorded run.
func (t *Toolbox) Instance(ctx context.Context, id string) (*WorkflowInstance, error) {
	return t.exec.GetInstance(ctx, id)
}

// Instances lists recorded runs matching opts.
func (t *Toolbox) Instances(ctx context.Context, opts InstanceListOptions) ([]*WorkflowInstance, error) {
	return t.exec.ListInstances(ctx, opts)
}

// Events returns the history of one run. Without a ledger it is empty.
func (t *Toolbox) Events(ctx context.Context, id string) ([]WorkflowEvent, error) {
	return t.exec.ListEvents(ctx, id)
}

// ArtifactHistory returns every recorded event that wrote or removed path,
// given relative to the working directory.
func (t *Toolbox) ArtifactHistory(ctx context.Context, path string) ([]WorkflowEvent, error) {
	return t.exec.ArtifactHistory(ctx, filepath.ToSlash(filepath.Clean(path)))
}
