// Package workerpool runs independent tasks on a fixed-size pool of
// goroutines, collecting one result per task in submission order.
package workerpool

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Task computes the result of the i-th task. Tasks share no mutable state;
// each writes only its own result slot.
type Task[T any] func(ctx context.Context, i int) (T, error)

// TaskError reports the failure of the lowest-indexed failed task.
type TaskError struct {
	// Index is the submission index of the failed task
	Index int

	// Failed is the total number of failed tasks
	Failed int

	Err error
}

// Error returns a formatted error string.
func (e *TaskError) Error() string {
	if e.Failed > 1 {
		return fmt.Sprintf("task %d failed (%d tasks failed): %v", e.Index, e.Failed, e.Err)
	}
	return fmt.Sprintf("task %d failed: %v", e.Index, e.Err)
}

// Unwrap returns the task's error.
func (e *TaskError) Unwrap() error {
	return e.Err
}

// DefaultSize returns the default pool size: the host's available parallelism.
func DefaultSize() int {
	return runtime.NumCPU()
}

// Run executes tasks 0..n-1 with at most size running at once (size <= 0
// means DefaultSize) and blocks until every dispatched task has returned.
// Results are indexed by submission order regardless of completion order.
//
// Running tasks are never interrupted. Once ctx is done, tasks not yet
// dispatched are skipped and recorded as failed with ctx.Err(). If any task
// failed, Run returns the results together with a *TaskError for the
// lowest-indexed failure.
func Run[T any](ctx context.Context, size, n int, task Task[T]) ([]T, error) {
	if size <= 0 {
		size = DefaultSize()
	}

	results := make([]T, n)
	errs := make([]error, n)

	var g errgroup.Group
	g.SetLimit(size)

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		idx := i
		g.Go(func() error {
			results[idx], errs[idx] = task(ctx, idx)
			return nil
		})
	}
	_ = g.Wait()

	var first *TaskError
	for i, err := range errs {
		if err == nil {
			continue
		}
		if first == nil {
			first = &TaskError{Index: i, Err: err}
		}
		first.Failed++
	}
	if first != nil {
		return results, first
	}
	return results, nil
}
