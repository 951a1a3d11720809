package taskqueue

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Dequeue once a closed queue has drained and by
// Enqueue after Close.
var ErrClosed = errors.New("taskqueue: closed")

// Task is one batch job: a CLI command run in its own working directory.
type Task struct {
	ID string

	// Name labels the job in logs and results.
	Name string

	// Command is the nrip subcommand, e.g. "hydro".
	Command string
	Args    []string

	// Dir is the session directory handed to the child process.
	Dir string

	Attempt    int
	EnqueuedAt time.Time
}

// Queue is a FIFO of tasks shared by workers.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next task, blocking until one is
	// available, the queue is closed and empty, or ctx is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Close stops accepting tasks. Queued tasks are still delivered.
	Close()

	// Len returns the approximate number of tasks queued.
	Len() int
}
