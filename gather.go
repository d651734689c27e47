// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package nampipe

import (
	"context"
)

// A Gather binds a [GatherFunc] to the tasks scattered through it.
type Gather[T any] struct {
	gatherFunc GatherFunc[T]
}

func NewGather[T any](
	gatherFunc GatherFunc[T],
) *Gather[T] {
	if gatherFunc == nil {
		panic("gather function must be non-nil")
	}
	return &Gather[T]{
		gatherFunc: gatherFunc,
	}
}

// Scatter initiates asynchronous execution of the provided task function in a
// new goroutine. After the task completes, its result and error are passed to
// the gather function within a subsequent call to one of the gathering
// methods of [Job], or within a later Scatter that has to wait for capacity.
//
// If the pool is at its limit, Scatter gathers completed results until a
// slot is free, so gather functions may run before Scatter returns.
//
// Scatter returns a non-nil error if the context is canceled or if a gather
// function returns a non-nil error; in that case the task was not launched
// and its gather function will not be called.
func (g *Gather[T]) Scatter(
	ctx context.Context,
	pool *TaskPool,
	taskFunc TaskFunc[T],
) error {
	vetScatter(ctx, pool, taskFunc)
	j := pool.job
	return scatter(ctx, pool, taskFunc, func(value T, err error) {
		// Bind the gather function to the result and hand it to whoever
		// gathers next. The slot is released as the result is gathered.
		gather := func(ctx context.Context) error {
			pool.release()
			return g.gatherFunc(ctx, value, err)
		}
		select {
		case j.gatherChan <- gather:
		case <-j.ctx.Done():
		}
	})
}
