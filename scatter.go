// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package nampipe

import (
	"context"
)

func vetScatter[T any](
	ctx context.Context,
	pool *TaskPool,
	taskFunc TaskFunc[T],
) {
	if taskFunc == nil {
		panic("task function must be non-nil")
	}
	if pool == nil {
		panic("pool must be non-nil")
	}

	j := pool.job
	if includesJob(ctx, j) {
		// Don't launch if the provided context is a task context within the
		// current job, since that may lead to deadlock.
		panic("Scatter called from within TaskFunc; move call to GatherFunc instead")
	}

	// Panic if the job no longer accepts tasks. This prevents tasks from
	// being launched after the caller has declared that it is draining the
	// job, which would create tasks that may never be gathered.
	j.state.PanicIfClosed()
}

func scatter[T any](
	ctx context.Context,
	pool *TaskPool,
	taskFunc TaskFunc[T],
	postResult func(T, error),
) (err error) {
	j := pool.job

	// Register the task with the job to make sure that any calls to gather will
	// block until the task is completed.
	j.state.IncrementTasks()

	// Bookkeeping: make sure that the job-scope count incremented above gets
	// decremented unless the launch actually happens
	defer func() {
		if err != nil {
			j.state.DecrementTasks()
		}
	}()

	return pool.launch(ctx, func(ctx context.Context) {
		var (
			value T
			err   error
		)
		if err = ctx.Err(); err == nil {
			// Since this is the top-level function of a goroutine, a panic in
			// the task function terminates the program.
			value, err = taskFunc(ctx)
		}

		postResult(value, err)
	})
}
