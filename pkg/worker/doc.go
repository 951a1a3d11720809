// Package worker runs batches of toolbox jobs.
//
// Jobs are queued as taskqueue.Task values and drained by a Worker that
// hands each one to a Handler. The nrip CLI uses a Handler that starts a
// child process per job, so every job gets its own session and working
// directory and no two workflows share one.
//
// # Concurrency
//
// Config.Parallel bounds how many handlers run at once. Drain keeps going
// when a job fails and reports every outcome in queue order:
//
//	q := taskqueue.NewInMemoryQueue(len(jobs))
//	w := worker.NewWithConfig(q, run, worker.Config{Parallel: 4})
//	for _, j := range jobs {
//		w.Enqueue(ctx, j)
//	}
//	q.Close()
//	results, err := w.Drain(ctx)
//
// # Retries
//
// Workflows themselves never retry. A Worker may rerun a failed job up to
// Config.MaxAttempts times with Config.Backoff between attempts; each run
// starts from whatever the previous attempt left on disk.
package worker
