package worker

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/siorconsulting/nrip-jamaica-open-source/internal/taskqueue"
)

// Handler runs one task to completion.
type Handler func(ctx context.Context, t taskqueue.Task) error

// Config tunes a Worker. Zero values select the defaults.
type Config struct {
	// MaxAttempts is how many times a failing task runs. Zero means once.
	MaxAttempts int

	// Backoff is the pause between attempts.
	Backoff time.Duration

	// Parallel bounds how many tasks run at once. Zero means one.
	Parallel int

	Logger *slog.Logger
}

// Result reports how a task ended.
type Result struct {
	Task     taskqueue.Task
	Err      error
	Duration time.Duration

	seq int
}

// Worker pulls tasks from a Queue and hands them to a Handler.
type Worker struct {
	queue  taskqueue.Queue
	handle Handler
	cfg    Config
}

// New creates a Worker running one task at a time without retries.
func New(queue taskqueue.Queue, handle Handler) *Worker {
	return NewWithConfig(queue, handle, Config{})
}

// NewWithConfig creates a Worker with explicit settings.
func NewWithConfig(queue taskqueue.Queue, handle Handler, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Worker{queue: queue, handle: handle, cfg: cfg}
}

// Enqueue stamps t with an ID and enqueue time and queues it.
func (w *Worker) Enqueue(ctx context.Context, t taskqueue.Task) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Name == "" {
		t.Name = t.Command
	}
	t.EnqueuedAt = time.Now()
	if err := w.queue.Enqueue(ctx, t); err != nil {
		return "", err
	}
	return t.ID, nil
}

// ProcessOne pulls a single task from the queue and runs it, retrying up to
// MaxAttempts. The returned error is only set when no task could be
// dequeued; the task's own failure is in Result.Err.
func (w *Worker) ProcessOne(ctx context.Context) (Result, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return Result{}, err
	}
	return w.process(ctx, *task), nil
}

// Drain runs every queued task with at most Parallel in flight and
// returns the results in queue order. The queue must be closed for Drain
// to return; a failing task does not stop the others.
func (w *Worker) Drain(ctx context.Context) ([]Result, error) {
	var (
		mu      sync.Mutex
		results []Result
		g       errgroup.Group
	)
	g.SetLimit(w.cfg.Parallel)

	var dequeueErr error
	for seq := 0; ; seq++ {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, taskqueue.ErrClosed) {
				dequeueErr = err
			}
			break
		}
		g.Go(func() error {
			res := w.process(ctx, *task)
			res.seq = seq
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].seq < results[j].seq })
	return results, dequeueErr
}

func (w *Worker) process(ctx context.Context, t taskqueue.Task) Result {
	logger := w.cfg.Logger.With(slog.String("task", t.Name), slog.String("task_id", t.ID))
	start := time.Now()

	var err error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		t.Attempt = attempt
		logger.Info("task started", slog.Int("attempt", attempt))
		if err = w.handle(ctx, t); err == nil {
			logger.Info("task completed", slog.Duration("duration", time.Since(start)))
			break
		}
		logger.Error("task failed", slog.Int("attempt", attempt), slog.Any("error", err))

		if attempt == w.cfg.MaxAttempts || ctx.Err() != nil {
			break
		}
		if w.cfg.Backoff > 0 {
			select {
			case <-time.After(w.cfg.Backoff):
			case <-ctx.Done():
			}
		}
	}
	return Result{Task: t, Err: err, Duration: time.Since(start)}
}
