// ============================================================================
// Geotile Worker - Tile Task Execution Unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: Work unit that runs a TileFunc on each tile path it receives
//
// How it works:
//   Each Worker is an independent goroutine that continuously executes the following loop:
//   1. Receive task from taskCh (blocking wait)
//   2. Run the TileFunc on the task path
//   3. Send result to resultCh
//   4. Repeat until taskCh is closed
//
// Execution Model:
//   ┌─────────────────────────────────────┐
//   │  Worker Goroutine                   │
//   │  ┌──────────────────────────────┐   │
//   │  │ for task := range taskCh     │   │
//   │  │   ├─ fn(ctx, task.Path)      │   │
//   │  │   └─ send result to resultCh │   │
//   │  └──────────────────────────────┘   │
//   └─────────────────────────────────────┘
//
// Error Handling:
//   - Tile failures never stop the worker; they are returned in Result.Err
//   - A panicking TileFunc is recovered and reported as an error for that tile
//
// Result delivery:
//   Results are sent with a blocking send so the caller's aggregate count is
//   exact. Callers size resultCh to the batch or drain it concurrently.
//
// ============================================================================

package worker

import (
	"context"
	"fmt"
	"time"
)

// Worker represents a tile execution unit
type Worker struct {
	id       int           // Worker identifier, used for logging and debugging
	ctx      context.Context
	fn       TileFunc      // Work applied to each tile
	taskCh   <-chan Task   // Task channel (read-only)
	resultCh chan<- Result // Result channel (write-only)
}

// newWorker creates a new Worker instance
func newWorker(ctx context.Context, id int, fn TileFunc, taskCh <-chan Task, resultCh chan<- Result) *Worker {
	return &Worker{
		id:       id,
		ctx:      ctx,
		fn:       fn,
		taskCh:   taskCh,
		resultCh: resultCh,
	}
}

// Run is the main loop of Worker
func (w *Worker) Run() {
	for task := range w.taskCh {
		start := time.Now()
		removed, err := w.execute(task.Path)

		w.resultCh <- Result{
			Path:     task.Path,
			Removed:  removed,
			Err:      err,
			Duration: time.Since(start),
		}
	}
}

// execute runs the TileFunc, converting a panic into an error
func (w *Worker) execute(path string) (removed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			removed = false
			err = fmt.Errorf("worker %d: panic processing %s: %v", w.id, path, r)
		}
	}()
	return w.fn(w.ctx, path)
}
